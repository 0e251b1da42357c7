// Package vga writes text to the memory-mapped 80x25 text-mode screen.
package vga

import (
	"fmt"
	"strings"
	"sync"
)

const (
	// Width is the number of columns of the screen.
	Width = 80

	// Height is the number of rows of the screen.
	Height = 25

	// BufferAddress is the physical address of the text buffer.
	BufferAddress = uint64(0xb8000)

	cellSize = 2
	rowSize  = Width * cellSize

	// BufferSize is the number of bytes of the text buffer.
	BufferSize = Height * rowSize

	unprintable = 0xfe
)

// Buffer gives access to the memory the text buffer is mapped in. Every call
// must reach memory.
type Buffer interface {
	Read(addr uint64, length uint64) ([]byte, error)
	Write(addr uint64, data []byte) error
}

// A Writer prints text on the last row of the screen and scrolls up on new
// lines. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	buf    Buffer
	base   uint64
	column int
	fg     Color
	bg     Color
}

// NewWriter creates a writer over the text buffer at BufferAddress.
func NewWriter(buf Buffer) *Writer {
	return &Writer{
		buf:  buf,
		base: BufferAddress,
		fg:   LightGrey,
		bg:   Black,
	}
}

// SetColor changes the colours of the text written from now on.
func (w *Writer) SetColor(fg, bg Color) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.fg = fg
	w.bg = bg
}

// Write prints p. It implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.write(p)
}

func (w *Writer) write(p []byte) (int, error) {
	for i, b := range p {
		if err := w.writeByte(b); err != nil {
			return i, err
		}
	}

	return len(p), nil
}

func (w *Writer) writeByte(b byte) error {
	if b == '\n' {
		return w.newLine()
	}

	if w.column >= Width {
		if err := w.newLine(); err != nil {
			return err
		}
	}

	if b < 0x20 || b > 0x7e {
		b = unprintable
	}

	addr := w.cellAddress(Height-1, w.column)
	if err := w.buf.Write(addr, []byte{b, byte(w.colorCode())}); err != nil {
		return err
	}

	w.column++

	return nil
}

func (w *Writer) colorCode() ColorCode {
	return NewColorCode(w.fg, w.bg)
}

func (w *Writer) cellAddress(row, col int) uint64 {
	return w.base + uint64(row*rowSize+col*cellSize)
}

func (w *Writer) newLine() error {
	for row := 1; row < Height; row++ {
		data, err := w.buf.Read(w.cellAddress(row, 0), rowSize)
		if err != nil {
			return err
		}

		if err := w.buf.Write(w.cellAddress(row-1, 0), data); err != nil {
			return err
		}
	}

	w.column = 0

	return w.clearRow(Height - 1)
}

func (w *Writer) clearRow(row int) error {
	blank := make([]byte, rowSize)
	code := byte(w.colorCode())

	for col := 0; col < Width; col++ {
		blank[col*cellSize] = ' '
		blank[col*cellSize+1] = code
	}

	return w.buf.Write(w.cellAddress(row, 0), blank)
}

// Clear blanks the whole screen.
func (w *Writer) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := 0; i < Height; i++ {
		if err := w.newLine(); err != nil {
			return err
		}
	}

	return nil
}

// Printf prints a formatted string.
func (w *Writer) Printf(format string, args ...any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := w.write([]byte(fmt.Sprintf(format, args...)))

	return err
}

// Logf prints one line prefixed with the level, in the colour of the level.
// The colours in use are restored afterwards.
func (w *Writer) Logf(level Level, format string, args ...any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fg := w.fg
	w.fg = level.Color()

	defer func() { w.fg = fg }()

	line := fmt.Sprintf("[%s] "+format, append([]any{level}, args...)...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	_, err := w.write([]byte(line))

	return err
}

// A Cell is one character on the screen.
type Cell struct {
	Char  byte
	Color ColorCode
}

// Cells reads back the content of the screen, row by row.
func (w *Writer) Cells() ([Height][Width]Cell, error) {
	var cells [Height][Width]Cell

	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := w.buf.Read(w.base, BufferSize)
	if err != nil {
		return cells, err
	}

	for row := 0; row < Height; row++ {
		for col := 0; col < Width; col++ {
			i := row*rowSize + col*cellSize
			cells[row][col] = Cell{Char: data[i], Color: ColorCode(data[i+1])}
		}
	}

	return cells, nil
}

// Screen reads back the text on the screen, one string per row, without
// trailing blanks.
func (w *Writer) Screen() ([]string, error) {
	cells, err := w.Cells()
	if err != nil {
		return nil, err
	}

	rows := make([]string, Height)

	for row := range cells {
		var sb strings.Builder

		for _, c := range cells[row] {
			ch := c.Char
			if ch == 0 {
				ch = ' '
			}

			sb.WriteByte(ch)
		}

		rows[row] = strings.TrimRight(sb.String(), " ")
	}

	return rows, nil
}
