// Package rimage defines the image buffers used while preparing head-mounted
// capture data for reconstruction, along with the depth calibration and tone
// mapping operations applied to them.
package rimage

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// MagicNumIntVersionX is the magic number of the depth map file format.
const MagicNumIntVersionX = int64(6363110)

// DepthMap is a dense rectangular buffer of float32 depth values. Depending on
// provenance the values are either device-native NDC samples or linear metric
// depth; see ConvertDepthToLinear.
type DepthMap struct {
	width  int
	height int

	data []float32
}

// NewEmptyDepthMap returns an unset depth map of the given dimensions.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]float32, width*height),
	}
}

// NewDepthMapFromData returns a depth map of the given dimensions wrapping a
// copy of data, which must be row-major of length width*height.
func NewDepthMapFromData(width, height int, data []float32) (*DepthMap, error) {
	if len(data) != width*height {
		return nil, errors.Errorf("cannot build a %dx%d depth map from %d values", width, height, len(data))
	}
	dm := NewEmptyDepthMap(width, height)
	copy(dm.data, data)
	return dm, nil
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// HasData returns whether the depth map contains any samples.
func (dm *DepthMap) HasData() bool {
	return dm.width > 0 && dm.data != nil
}

// Width returns the width of the depth map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height of the depth map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle of valid coordinates.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// In returns whether the coordinate lies within the depth map.
func (dm *DepthMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// Get returns the depth at a given image.Point.
func (dm *DepthMap) Get(p image.Point) float32 {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// GetDepth returns the depth at a given (x, y) coordinate.
func (dm *DepthMap) GetDepth(x, y int) float32 {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at a given (x, y) coordinate.
func (dm *DepthMap) Set(x, y int, val float32) {
	dm.data[dm.kxy(x, y)] = val
}

// Clone returns a fresh copy of the depth map sharing no storage with the original.
func (dm *DepthMap) Clone() *DepthMap {
	out := NewEmptyDepthMap(dm.width, dm.height)
	copy(out.data, dm.data)
	return out
}

// MinMax returns the smallest and largest values in the depth map.
func (dm *DepthMap) MinMax() (float32, float32) {
	min := float32(math.Inf(1))
	max := float32(math.Inf(-1))
	for _, v := range dm.data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// ParseDepthMap parses a depth map from the given file, gunzipping if the file
// ends in .gz.
func ParseDepthMap(fn string) (*DepthMap, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var in io.Reader = f
	if filepath.Ext(fn) == ".gz" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(gz.Close)
		in = gz
	}

	return ReadDepthMap(bufio.NewReader(in))
}

// ReadDepthMap returns a depth map from the given reader.
func ReadDepthMap(r *bufio.Reader) (*DepthMap, error) {
	magic, err := readNextInt64(r)
	if err != nil {
		return nil, err
	}
	if magic != MagicNumIntVersionX {
		return nil, errors.Errorf("bad magic number for depth map: %d", magic)
	}

	rawWidth, err := readNextInt64(r)
	if err != nil {
		return nil, err
	}
	rawHeight, err := readNextInt64(r)
	if err != nil {
		return nil, err
	}
	if rawWidth <= 0 || rawHeight <= 0 || rawWidth*rawHeight > 100_000_000 {
		return nil, errors.Errorf("bad depth map dimensions %dx%d", rawWidth, rawHeight)
	}

	dm := NewEmptyDepthMap(int(rawWidth), int(rawHeight))
	if err := binary.Read(r, binary.LittleEndian, dm.data); err != nil {
		return nil, errors.Wrap(err, "error reading depth map data")
	}
	return dm, nil
}

// WriteTo writes the depth map to the given writer in the binary depth map format.
func (dm *DepthMap) WriteTo(out io.Writer) error {
	for _, v := range []int64{MagicNumIntVersionX, int64(dm.width), int64(dm.height)} {
		if err := binary.Write(out, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return binary.Write(out, binary.LittleEndian, dm.data)
}

// WriteToFile writes the depth map to the given file, gzipping if the file
// ends in .gz.
func (dm *DepthMap) WriteToFile(fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var out io.Writer = f
	var gz *gzip.Writer
	if filepath.Ext(fn) == ".gz" {
		gz = gzip.NewWriter(f)
		out = gz
	}

	buf := bufio.NewWriter(out)
	if err := dm.WriteTo(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}

func readNextInt64(r io.Reader) (int64, error) {
	var v int64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, errors.Wrap(err, "error reading depth map header")
	}
	return v, nil
}
