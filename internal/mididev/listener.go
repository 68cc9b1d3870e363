// Package mididev keeps every MIDI input port open and forwards its raw
// messages, handling hot-plug and unplug by periodic rescans.
package mididev

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// DefaultExcluded lists virtual and system ports that are never opened.
var DefaultExcluded = []string{"Midi Through", "Through Port", "Dummy"}

const DefaultRescanInterval = time.Second

// Driver is the part of a gomidi driver the listener needs.
type Driver interface {
	Ins() ([]drivers.In, error)
	Close() error
}

type Options struct {
	// Include, when not empty, restricts opening to ports whose name
	// contains one of the patterns.
	Include []string
	// Exclude skips ports whose name contains one of the patterns.
	// Nil means DefaultExcluded.
	Exclude      []string
	OnMessage    func(device string, msg []byte)
	OnDisconnect func(device string)
	Logger       *slog.Logger
}

type port struct {
	in   drivers.In
	stop func()
}

// Listener owns the open input ports of one driver.
type Listener struct {
	mu     sync.Mutex
	driver Driver
	opts   Options
	logger *slog.Logger
	open   map[string]*port
	closed bool
}

func New(driver Driver, opts Options) *Listener {
	if opts.Exclude == nil {
		opts.Exclude = DefaultExcluded
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		driver: driver,
		opts:   opts,
		logger: logger,
		open:   make(map[string]*port),
	}
}

// Devices lists the usable input port names.
func (l *Listener) Devices() ([]string, error) {
	ins, err := l.driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("midi: list inputs: %w", err)
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return filterNames(names, l.opts.Include, l.opts.Exclude), nil
}

// Connected returns the names of the ports currently open, sorted.
func (l *Listener) Connected() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.open))
	for name := range l.open {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Rescan opens ports that appeared since the last scan and closes the ones
// that vanished, reporting each through OnDisconnect.
func (l *Listener) Rescan() error {
	ins, err := l.driver.Ins()
	if err != nil {
		return fmt.Errorf("midi: list inputs: %w", err)
	}
	byName := make(map[string]drivers.In, len(ins))
	var names []string
	for _, in := range ins {
		byName[in.String()] = in
		names = append(names, in.String())
	}
	present := filterNames(names, l.opts.Include, l.opts.Exclude)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	added, removed := diff(l.connectedLocked(), present)
	for _, name := range removed {
		l.logger.Warn("midi: device disappeared", "device", name)
		l.closeLocked(name)
	}
	for _, name := range added {
		if err := l.openLocked(name, byName[name]); err != nil {
			l.logger.Error("midi: connect failed", "device", name, "err", err)
		}
	}
	l.mu.Unlock()

	for _, name := range removed {
		l.disconnected(name)
	}
	return nil
}

// Run rescans immediately and then every interval until ctx is done.
func (l *Listener) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRescanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := l.Rescan(); err != nil {
			l.logger.Error("midi: rescan failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close closes every port and the driver.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for name := range l.open {
		l.closeLocked(name)
	}
	return l.driver.Close()
}

func (l *Listener) connectedLocked() []string {
	names := make([]string, 0, len(l.open))
	for name := range l.open {
		names = append(names, name)
	}
	return names
}

func (l *Listener) openLocked(name string, in drivers.In) error {
	if in == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		if l.opts.OnMessage != nil {
			l.opts.OnMessage(name, []byte(msg))
		}
	}, midi.HandleError(func(err error) {
		l.logger.Warn("midi: listener error", "device", name, "err", err)
		// the listener goroutine must not close its own port
		go l.drop(name, in)
	}))
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}
	l.open[name] = &port{in: in, stop: stop}
	l.logger.Info("midi: connected", "device", name)
	return nil
}

func (l *Listener) closeLocked(name string) {
	p, ok := l.open[name]
	if !ok {
		return
	}
	delete(l.open, name)
	if p.stop != nil {
		p.stop()
	}
	_ = p.in.Close()
}

// drop closes a failed port; the next rescan may reopen it.
func (l *Listener) drop(name string, in drivers.In) {
	l.mu.Lock()
	p, ok := l.open[name]
	if !ok || p.in != in {
		l.mu.Unlock()
		return
	}
	l.closeLocked(name)
	l.mu.Unlock()
	l.disconnected(name)
}

func (l *Listener) disconnected(name string) {
	if l.opts.OnDisconnect != nil {
		l.opts.OnDisconnect(name)
	}
}

func filterNames(names, include, exclude []string) []string {
	var out []string
	for _, name := range names {
		if matchAny(name, exclude) {
			continue
		}
		if len(include) > 0 && !matchAny(name, include) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func matchAny(name string, patterns []string) bool {
	for _, pat := range patterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// diff reports names in next but not prev, and in prev but not next.
func diff(prev, next []string) (added, removed []string) {
	for _, n := range next {
		if !slices.Contains(prev, n) {
			added = append(added, n)
		}
	}
	for _, p := range prev {
		if !slices.Contains(next, p) {
			removed = append(removed, p)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}
