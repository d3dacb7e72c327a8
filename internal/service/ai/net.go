package ai

import (
	"errors"
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

// ErrNetNotLoaded is returned when inference runs without a loaded network.
var ErrNetNotLoaded = errors.New("network not loaded")

// loadNet reads a network exported to ONNX (or any format gocv.ReadNet
// detects from the extension) and pins it to the CPU backend.
func loadNet(modelPath string) (gocv.Net, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return gocv.Net{}, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return gocv.Net{}, fmt.Errorf("failed to set preferable backend or target")
	}

	return net, nil
}
