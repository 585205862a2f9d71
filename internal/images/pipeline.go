package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// State is the lifecycle of a cache entry. It only moves forward:
// Loading, then Loaded or Failed.
type State int

const (
	Loading State = iota
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Entry is the cached result for one attachment path. Width and Height are
// display cells. Raster holds Width x 2*Height pixels, one pixel per half cell.
type Entry struct {
	State  State
	Width  int
	Height int
	Raster *image.RGBA
	Err    error
}

// request asks for a preview no wider than maxWidth, or for exactly
// maxWidth x height cells when height is set.
type request struct {
	path     string
	maxWidth int
	height   int
}

type result struct {
	path  string
	entry Entry
}

const queueSize = 64

// Pipeline decodes images on a single worker goroutine. Request, Poll and Get
// own the cache and must be called from the same goroutine; only the
// channels cross over to the worker.
type Pipeline struct {
	dir      string
	logger   *zap.Logger
	requests chan request
	results  chan result
	notify   chan struct{}
	cache    map[string]*Entry
}

// New creates a pipeline resolving relative paths against attachmentsDir.
func New(attachmentsDir string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		dir:      attachmentsDir,
		logger:   logger.Named("images"),
		requests: make(chan request, queueSize),
		results:  make(chan result, queueSize),
		notify:   make(chan struct{}, 1),
		cache:    make(map[string]*Entry),
	}
}

// Run is the worker loop. It returns when ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.requests:
			entry := p.load(req)
			select {
			case p.results <- result{path: req.path, entry: entry}:
			case <-ctx.Done():
				return
			}
			select {
			case p.notify <- struct{}{}:
			default:
			}
		}
	}
}

// Ready is signalled after the worker publishes a result.
func (p *Pipeline) Ready() <-chan struct{} {
	return p.notify
}

// Request queues path for decoding unless it is already known. A full queue
// drops the request and forgets the path so a later call retries it.
func (p *Pipeline) Request(path string, maxWidth int) bool {
	return p.enqueue(request{path: path, maxWidth: maxWidth})
}

// RequestSized is Request for a thumbnail scaled to exactly width x height
// cells regardless of aspect.
func (p *Pipeline) RequestSized(path string, width, height int) bool {
	return p.enqueue(request{path: path, maxWidth: width, height: height})
}

func (p *Pipeline) enqueue(req request) bool {
	path := req.path
	if _, ok := p.cache[path]; ok {
		return false
	}
	p.cache[path] = &Entry{State: Loading}
	select {
	case p.requests <- req:
		return true
	default:
		delete(p.cache, path)
		return false
	}
}

// Poll installs every finished result without blocking and reports how many
// entries changed.
func (p *Pipeline) Poll() int {
	n := 0
	for {
		select {
		case r := <-p.results:
			if e, ok := p.cache[r.path]; ok && e.State != Loading {
				continue
			}
			entry := r.entry
			p.cache[r.path] = &entry
			n++
		default:
			return n
		}
	}
}

// Get returns the cache entry for path.
func (p *Pipeline) Get(path string) (Entry, bool) {
	e, ok := p.cache[path]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Height returns the display height reserved for path: the loaded height, or
// PlaceholderHeight while loading, failed or unknown.
func (p *Pipeline) Height(path string) int {
	if e, ok := p.cache[path]; ok && e.State == Loaded {
		return e.Height
	}
	return PlaceholderHeight
}

func (p *Pipeline) resolve(path string) string {
	if filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

func (p *Pipeline) load(req request) Entry {
	size := func(pw, ph int) (int, int) { return DisplaySize(pw, ph, req.maxWidth) }
	if req.height > 0 {
		size = func(int, int) (int, int) { return req.maxWidth, req.height }
	}
	w, h, raster, err := decode(p.resolve(req.path), size)
	if err != nil {
		p.logger.Debug("image decode failed", zap.String("path", req.path), zap.Error(err))
		return Entry{State: Failed, Err: err}
	}
	return Entry{State: Loaded, Width: w, Height: h, Raster: raster}
}

// decode reads an image and scales it to the cell size chosen by size.
func decode(path string, size func(pw, ph int) (int, int)) (int, int, *image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("read image: %w", err)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return 0, 0, nil, fmt.Errorf("not an image: %s", mt.String())
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := size(b.Dx(), b.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, w, h*2))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return w, h, dst, nil
}
