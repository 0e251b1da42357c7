package vga

// Color is one of the 16 text-mode colours.
type Color uint8

// Text-mode colours.
const (
	Black Color = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	DarkGrey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	Pink
	Yellow
	White
)

// ColorCode is the attribute byte of a screen cell.
type ColorCode uint8

// NewColorCode combines a foreground and a background colour.
func NewColorCode(fg, bg Color) ColorCode {
	return ColorCode(uint8(bg)<<4 | uint8(fg)&0x0f)
}

// Foreground returns the foreground colour.
func (c ColorCode) Foreground() Color {
	return Color(c & 0x0f)
}

// Background returns the background colour.
func (c ColorCode) Background() Color {
	return Color(c >> 4)
}

// Level is the severity of a log line.
type Level int

// Log levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "LOG"
	}
}

// Color returns the foreground colour of log lines of this level.
func (l Level) Color() Color {
	switch l {
	case LevelDebug:
		return DarkGrey
	case LevelWarn:
		return Yellow
	case LevelError:
		return Red
	default:
		return LightGrey
	}
}
