package api

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FocusAssist</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #111;
            color: #ddd;
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            height: 100vh;
        }
        .panel {
            width: 260px;
            padding: 16px;
            display: flex;
            flex-direction: column;
            gap: 12px;
            background: #1b1b1b;
        }
        .panel img { width: 100px; height: 256px; image-rendering: pixelated; background: #fff; }
        .label { color: #888; font-size: 12px; text-transform: uppercase; }
        .value { font-family: 'Courier New', monospace; font-size: 16px; }
        .error { color: #ff6060; font-size: 13px; min-height: 1em; }
        button {
            padding: 8px;
            border: none;
            border-radius: 4px;
            background: #2d5d8a;
            color: #fff;
            cursor: pointer;
        }
        button.active { background: #8a2d2d; }
        .hint { color: #666; font-size: 12px; line-height: 1.6; }
        .preview { flex: 1; display: flex; align-items: center; justify-content: center; }
        .preview img { max-width: 100%; max-height: 100vh; object-fit: contain; }
    </style>
</head>
<body>
    <div class="panel">
        <img id="histogram" alt="histogram">
        <div><div class="label">Focus</div><div class="value" id="focus">-, -, -</div></div>
        <div><div class="label">Clipping</div><div class="value" id="clipping">-, -, -</div></div>
        <div><div class="label">State</div><div class="value" id="state">idle</div></div>
        <div class="error" id="error"></div>
        <button id="once">Capture once</button>
        <button id="continuous">Run continuous</button>
        <button id="quit">Quit</button>
        <div class="hint">Ctrl+G capture<br>Ctrl+R continuous<br>Ctrl+Q quit</div>
    </div>
    <div class="preview"><img src="/stream" alt="preview"></div>
    <script>
        const $ = id => document.getElementById(id);

        function send(command) {
            const path = command === 'quit' ? '/api/quit' : '/api/capture/' + command;
            fetch(path, { method: 'POST' }).then(r => {
                if (!r.ok) r.text().then(t => { $('error').textContent = t; });
            });
        }

        $('once').onclick = () => send('once');
        $('continuous').onclick = () => send('continuous');
        $('quit').onclick = () => send('quit');

        document.addEventListener('keydown', e => {
            if (!e.ctrlKey) return;
            const command = { g: 'once', r: 'continuous', q: 'quit' }[e.key.toLowerCase()];
            if (command) {
                e.preventDefault();
                send(command);
            }
        });

        function apply(u) {
            $('focus').textContent = u.focus_text;
            $('clipping').textContent = u.clipping_text;
            $('state').textContent = u.state;
            $('error').textContent = u.error || '';
            const running = u.state === 'continuous';
            $('continuous').textContent = running ? 'Stop continuous' : 'Run continuous';
            $('continuous').classList.toggle('active', running);
            $('once').disabled = running;
            if (u.kind === 'histogram' || (u.kind === 'state' && u.seq)) {
                $('histogram').src = '/histogram.png?seq=' + u.seq;
            }
        }

        function connect() {
            const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/events');
            ws.onmessage = e => apply(JSON.parse(e.data));
            ws.onclose = () => setTimeout(connect, 1000);
        }
        connect();
    </script>
</body>
</html>`
