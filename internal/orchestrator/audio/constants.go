// Package audio routes PCM between the phone's voice link and the local audio
// device.
package audio

// DefaultSampleRate is the rate assumed before any codec is negotiated.
const DefaultSampleRate = 8000
