//go:build !gocv

package camera

import "fmt"

func openWebcam(device int) (Camera, error) {
	return nil, fmt.Errorf("webcam %d: built without gocv support (rebuild with -tags gocv)", device)
}
