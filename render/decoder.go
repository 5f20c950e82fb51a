package render

import (
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/models"
)

// Decoder is the interface that describes the decode pass turning rendered
// ID colors into a set of visible unique ids.
type Decoder interface {
	// Zeroes every flag.
	Clear() error

	// Marks the unique ids of the colors found in img.
	Scan(img *image.RGBA) error

	// Returns the flags, indexed by unique id. A non zero flag means the
	// unique id was seen since the last Clear.
	Read() ([]uint32, error)

	// Frees the decoder resources.
	Release()
}

// DecoderFactory creates a decoder holding size flags.
type DecoderFactory func(size int) (Decoder, error)

// NewBitsetDecoderFactory returns a factory of software decoders.
func NewBitsetDecoderFactory() DecoderFactory {
	return func(size int) (Decoder, error) {
		return NewBitsetDecoder(size)
	}
}

// BitsetDecoder is a software Decoder that scans images with parallel row
// bands.
type BitsetDecoder struct {
	// The number of goroutines scanning an image. Defaults to the number of
	// CPUs.
	Workers int

	mutex    sync.Mutex
	flags    []uint32
	released bool
}

func NewBitsetDecoder(size int) (*BitsetDecoder, error) {
	if size <= 0 {
		return nil, errors.New("invalid decoder size").
			WithType(ErrTypeInvalidDecoder).
			WithTag("size", size)
	}

	return &BitsetDecoder{
		Workers: runtime.NumCPU(),
		flags:   make([]uint32, size),
	}, nil
}

func (d *BitsetDecoder) Clear() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.released {
		return errDecoderReleased()
	}

	clear(d.flags)
	return nil
}

func (d *BitsetDecoder) Scan(img *image.RGBA) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.released {
		return errDecoderReleased()
	}
	if img == nil {
		return errors.New("nil image").WithType(ErrTypeInvalidTarget)
	}

	bounds := img.Bounds()
	rows := bounds.Dy()
	if rows <= 0 {
		return nil
	}

	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > rows {
		workers = rows
	}
	band := (rows + workers - 1) / workers

	var wg sync.WaitGroup
	for start := bounds.Min.Y; start < bounds.Max.Y; start += band {
		end := min(start+band, bounds.Max.Y)

		wg.Add(1)
		go func() {
			defer wg.Done()
			d.scanRows(img, start, end)
		}()
	}
	wg.Wait()

	return nil
}

func (d *BitsetDecoder) scanRows(img *image.RGBA, start, end int) {
	bounds := img.Bounds()

	for y := start; y < end; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			uid, ok := models.DecodeUniqueID(img.RGBAAt(x, y))
			if !ok || uid >= len(d.flags) {
				continue
			}
			atomic.StoreUint32(&d.flags[uid], 1)
		}
	}
}

func (d *BitsetDecoder) Read() ([]uint32, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.released {
		return nil, errDecoderReleased()
	}

	flags := make([]uint32, len(d.flags))
	copy(flags, d.flags)
	return flags, nil
}

func (d *BitsetDecoder) Release() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.released = true
	d.flags = nil
}

func errDecoderReleased() error {
	return errors.New("decoder is released").WithType(ErrTypeDecoderReleased)
}
