package audio

// Drain reads from ch until the channel is closed, discarding all values.
// A device's capture goroutine blocks on its send, so a consumer that stops
// early must drain the channel for the device to exit.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
