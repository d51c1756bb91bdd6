package types

// Instance is what a fill callback and a backend see of a driver.
type Instance interface {
	Type() *DriverType
	Delegate() *Delegate
}

// FillFunc populates buf with the next interleaved samples. len(buf) is the
// sample capacity (frames times channels). A non-nil error is fatal: the
// backend latches it and stops delivering audio.
//
// FillFunc is always called from the backend worker goroutine and may be
// called before the constructor of the driver returns.
type FillFunc func(inst Instance, buf []int16) error

// Delegate is the host-supplied configuration and callback bundle bound to a
// driver instance.
type Delegate struct {
	SampleRate SampleRate

	Channels Channel

	// Device is interpreted by the backend; empty means the default device.
	Device string

	Fill FillFunc

	// UserData is passed through untouched.
	UserData any
}

// ApplyDefaults replaces the non-positive rate and channel count by
// DefaultSampleRate and DefaultChannels.
func (d *Delegate) ApplyDefaults() {
	if d.SampleRate <= 0 {
		d.SampleRate = DefaultSampleRate
	}
	if d.Channels <= 0 {
		d.Channels = DefaultChannels
	}
}

func (d *Delegate) Format() Format {
	return Format{
		SampleRate: d.SampleRate,
		Channels:   d.Channels,
	}
}
