package media

import (
	"errors"
	"fmt"
)

// Sentinel errors for the media package.
var (
	// ErrDeviceDenied indicates the camera or microphone could not be used.
	ErrDeviceDenied = errors.New("media: device access denied")

	// ErrHandleLive indicates a handle is already live for this manager.
	ErrHandleLive = errors.New("media: a media handle is already live")

	// ErrReleased indicates the handle was released.
	ErrReleased = errors.New("media: handle released")

	// ErrNoCamera indicates no camera backend is configured.
	ErrNoCamera = errors.New("media: no camera configured")
)

// Device names a capture device.
type Device string

const (
	DeviceCamera     Device = "camera"
	DeviceMicrophone Device = "microphone"
)

// DeviceError reports which device was denied. It matches ErrDeviceDenied.
type DeviceError struct {
	Device Device
	Cause  error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("media: %s access denied: %v", e.Device, e.Cause)
	}
	return fmt.Sprintf("media: %s access denied", e.Device)
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrDeviceDenied.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceDenied
}

func denied(d Device, cause error) error {
	return &DeviceError{Device: d, Cause: cause}
}

// DeniedDevice returns the device named by a DeviceError, or "".
func DeniedDevice(err error) Device {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Device
	}
	return ""
}
