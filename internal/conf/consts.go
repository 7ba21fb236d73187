// conf/consts.go hard coded constants
package conf

const (
	SampleRate   = 44100      // Engine sample rate in Hz
	NumChannels  = 2          // Interleaved channel count
	BufferFrames = 16 * 48000 // Per-path ring buffer capacity in frames
	MaxOffsetMs  = 1000       // Largest accepted delay offset

	DefaultEventQueue = 256 // Buffered diagnostics events per session

	// DefaultDeviceName selects the backend's default device.
	DefaultDeviceName = "default"

	ConfigFileName = "config.yaml"
	appDirName     = "syncwave"
	envPrefix      = "SYNCWAVE"
)

// Audio backends accepted by audio.backend.
const (
	BackendAuto      = "auto"
	BackendWASAPI    = "wasapi"
	BackendPulse     = "pulse"
	BackendALSA      = "alsa"
	BackendCoreAudio = "coreaudio"
	BackendJACK      = "jack"
	BackendNull      = "null"
)
