package vga

import (
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kmem/mem/memory"
)

var _ = Describe("Writer", func() {
	var (
		storage *memory.Storage
		w       *Writer
	)

	BeforeEach(func() {
		storage = memory.NewStorage(1 << 20)
		w = NewWriter(storage)
	})

	lastRow := func() string {
		rows, err := w.Screen()
		Expect(err).NotTo(HaveOccurred())

		return rows[Height-1]
	}

	It("should write to the last row", func() {
		_, err := w.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())

		Expect(lastRow()).To(Equal("hello"))

		cell, _ := storage.Read(BufferAddress+(Height-1)*rowSize, 2)
		Expect(cell).To(Equal([]byte{'h', byte(NewColorCode(LightGrey, Black))}))
	})

	It("should scroll up on new lines", func() {
		Expect(w.Printf("first\nsecond\n")).To(Succeed())

		rows, err := w.Screen()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows[Height-3]).To(Equal("first"))
		Expect(rows[Height-2]).To(Equal("second"))
		Expect(rows[Height-1]).To(BeEmpty())
	})

	It("should wrap long lines", func() {
		Expect(w.Printf("%s", strings.Repeat("a", Width+3))).To(Succeed())

		rows, _ := w.Screen()
		Expect(rows[Height-2]).To(Equal(strings.Repeat("a", Width)))
		Expect(rows[Height-1]).To(Equal("aaa"))
	})

	It("should drop lines that scroll off the top", func() {
		for i := 0; i < Height+2; i++ {
			Expect(w.Printf("line %d\n", i)).To(Succeed())
		}

		rows, _ := w.Screen()
		Expect(rows[0]).To(Equal("line 3"))
		Expect(rows[Height-2]).To(Equal("line 26"))
	})

	It("should replace unprintable bytes", func() {
		_, _ = w.Write([]byte{'a', 0x07, 'b'})

		Expect(lastRow()).To(Equal("a\xfeb"))
	})

	It("should colour log lines by level", func() {
		Expect(w.Logf(LevelWarn, "low memory: %d frames", 3)).To(Succeed())
		Expect(w.Logf(LevelError, "halted\n")).To(Succeed())

		cells, err := w.Cells()
		Expect(err).NotTo(HaveOccurred())

		warn := cells[Height-3]
		Expect(string(warn[0].Char) + string(warn[1].Char)).To(Equal("[W"))
		Expect(warn[0].Color.Foreground()).To(Equal(Yellow))

		errLine := cells[Height-2]
		Expect(errLine[0].Color.Foreground()).To(Equal(Red))

		rows, _ := w.Screen()
		Expect(rows[Height-3]).To(Equal("[WARN] low memory: 3 frames"))
		Expect(rows[Height-2]).To(Equal("[ERROR] halted"))
	})

	It("should restore the colour after a log line", func() {
		w.SetColor(Yellow, Blue)
		Expect(w.Logf(LevelDebug, "x")).To(Succeed())
		_, _ = w.Write([]byte("y"))

		cells, _ := w.Cells()
		Expect(cells[Height-2][0].Color.Foreground()).To(Equal(DarkGrey))
		Expect(cells[Height-1][0].Color).To(Equal(NewColorCode(Yellow, Blue)))
	})

	It("should clear the screen", func() {
		Expect(w.Printf("a\nb\nc")).To(Succeed())

		Expect(w.Clear()).To(Succeed())

		rows, _ := w.Screen()
		for _, r := range rows {
			Expect(r).To(BeEmpty())
		}
	})

	It("should serialize concurrent writers", func() {
		var wg sync.WaitGroup

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = w.Printf("xxxxxxxxxx\n")
			}()
		}
		wg.Wait()

		rows, _ := w.Screen()
		for _, r := range rows[Height-9 : Height-1] {
			Expect(r).To(Equal("xxxxxxxxxx"))
		}
	})

	It("should report buffer errors", func() {
		w = NewWriter(memory.NewStorage(BufferAddress))

		n, err := w.Write([]byte("abc"))

		Expect(err).To(MatchError(memory.ErrAddressOutOfRange))
		Expect(n).To(BeZero())
	})
})

var _ = Describe("ColorCode", func() {
	It("should pack foreground and background", func() {
		c := NewColorCode(Yellow, Blue)

		Expect(uint8(c)).To(Equal(uint8(0x1e)))
		Expect(c.Foreground()).To(Equal(Yellow))
		Expect(c.Background()).To(Equal(Blue))
	})
})
