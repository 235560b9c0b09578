// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package errors provides structured error types for the sump pump logger.
//
// This package defines custom error types that provide better error
// handling, inspection, and debugging capabilities compared to plain
// string errors.
//
// # Example Usage
//
//	err := errors.NewTelemetryError("sample", "dev-1", fmt.Errorf("shadow timeout"))
//	if errors.IsTelemetryError(err) {
//	    log.Printf("Sampling failed: %v", err)
//	}
package errors

import (
	"errors"
	"fmt"
)

// TelemetryError represents an error collecting telemetry from a device.
type TelemetryError struct {
	Op       string // Operation being performed (e.g., "sample", "list devices")
	DeviceID string // Device involved (if applicable)
	Err      error  // Underlying error
}

func (e *TelemetryError) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("telemetry %s (device=%s): %v", e.Op, e.DeviceID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("telemetry %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("telemetry %s failed", e.Op)
}

func (e *TelemetryError) Unwrap() error {
	return e.Err
}

// NewTelemetryError creates a new telemetry error.
func NewTelemetryError(op string, deviceID string, err error) *TelemetryError {
	return &TelemetryError{Op: op, DeviceID: deviceID, Err: err}
}

// IsTelemetryError checks if an error is a TelemetryError.
func IsTelemetryError(err error) bool {
	var te *TelemetryError
	return errors.As(err, &te)
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Op       string // Operation being performed (e.g., "write", "load state")
	DeviceID string // Device ID involved in the operation (if applicable)
	Err      error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("storage %s (device=%s): %v", e.Op, e.DeviceID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error.
func NewStorageError(op string, deviceID string, err error) *StorageError {
	return &StorageError{Op: op, DeviceID: deviceID, Err: err}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// NotificationError represents an error sending notifications.
type NotificationError struct {
	Type string // Notification type (e.g., "slack")
	Err  error  // Underlying error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("notification %s failed", e.Type)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new notification error.
func NewNotificationError(notifType string, err error) *NotificationError {
	return &NotificationError{Type: notifType, Err: err}
}

// IsNotificationError checks if an error is a NotificationError.
func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}

// Sentinel errors for common conditions
var (
	// ErrDeviceNotFound indicates a device was not found
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceOffline indicates a device is offline or unreachable
	ErrDeviceOffline = errors.New("device offline")

	// ErrUnavailable indicates a derived value cannot be computed yet,
	// such as basin fullness before both thresholds are learned
	ErrUnavailable = errors.New("value unavailable")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timeout")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
