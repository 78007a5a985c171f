// Package cvcam reads frames from a local camera with OpenCV and finds
// ArUco beacon markers in them.
//
// The implementation needs OpenCV and is only compiled with the gocv
// build tag.
package cvcam
