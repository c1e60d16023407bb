//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ============================================================================
// evdev force-feedback backend
// ============================================================================
//
// Drives a rumble-capable /dev/input/event* device. Levels coming from a
// curvePlayer are turned into FF_RUMBLE uploads; run_pattern accepts a raw
// struct ff_effect and plays it once.
//
// Hangup or error on the device fd (unplugged controller) is reported through
// OnExternalStop(DeviceDisconnected).
// ============================================================================

const evdevWatchTimeoutMs = 250

type EvdevBackend struct {
	cfg       EvdevConfig
	controlHz int
	logger    *slog.Logger
}

func NewEvdevBackend(cfg EvdevConfig, controlHz int, logger *slog.Logger) Backend {
	return &EvdevBackend{cfg: cfg, controlHz: controlHz, logger: logger}
}

func (b *EvdevBackend) Name() string { return "evdev" }

// Probe reads the device's EV_FF capability bitmap.
func (b *EvdevBackend) Probe() Capabilities {
	f, err := os.OpenFile(b.cfg.Device, os.O_RDONLY, 0)
	if err != nil {
		b.logger.Warn("evdev probe: cannot open device", "device", b.cfg.Device, "error", err)
		return Capabilities{}
	}
	defer f.Close()

	bits := make([]byte, (FF_MAX+1)/8)
	if err := ioctl(f.Fd(), eviocgbit(EV_FF, uintptr(len(bits))), uintptr(unsafe.Pointer(&bits[0]))); err != nil {
		b.logger.Warn("evdev probe: EVIOCGBIT failed", "device", b.cfg.Device, "error", err)
		return Capabilities{}
	}
	rumble := hasBit(bits, FF_RUMBLE)
	return Capabilities{
		SupportsHaptics:          rumble,
		SupportsContinuousCurves: rumble && b.cfg.Continuous,
	}
}

func (b *EvdevBackend) CreateEngine(cb EngineCallbacks) (Engine, error) {
	caps := b.Probe()
	if !caps.SupportsHaptics {
		return nil, fmt.Errorf("%w: %s has no rumble support", ErrNotSupported, b.cfg.Device)
	}
	return &evdevEngine{
		path:      b.cfg.Device,
		gain:      b.cfg.Gain,
		caps:      caps,
		controlHz: b.controlHz,
		cb:        cb,
		logger:    b.logger.With("device", b.cfg.Device),
		levelID:   -1,
	}, nil
}

type evdevEngine struct {
	path      string
	gain      float64
	caps      Capabilities
	controlHz int
	cb        EngineCallbacks
	logger    *slog.Logger

	mu         sync.Mutex
	f          *os.File
	levelID    int16
	patternIDs []int16
	stopWatch  chan struct{}
	watchDone  chan struct{}
}

func (e *evdevEngine) Capabilities() Capabilities { return e.caps }

func (e *evdevEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.f != nil {
		return nil
	}

	f, err := os.OpenFile(e.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrEngineUnavailable, e.path, err)
	}
	if _, err := f.Write(gainEvent(e.gain).encode()); err != nil {
		f.Close()
		return fmt.Errorf("%w: set gain: %v", ErrEngineUnavailable, err)
	}

	e.f = f
	e.levelID = -1
	e.stopWatch = make(chan struct{})
	e.watchDone = make(chan struct{})
	go e.watch(int(f.Fd()), e.stopWatch, e.watchDone)
	return nil
}

// watch polls the device fd for hangup. EPOLLERR and EPOLLHUP are always
// reported, so the fd is registered with an empty interest set.
func (e *evdevEngine) watch(fd int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		e.logger.Error("evdev watch: epoll_create1", "error", err)
		return
	}
	defer unix.Close(epfd)

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd)}); err != nil {
		e.logger.Error("evdev watch: epoll_ctl_add", "error", err, "fd", fd)
		return
	}

	events := make([]unix.EpollEvent, 1)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := unix.EpollWait(epfd, events, evdevWatchTimeoutMs)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			e.logger.Error("evdev watch: epoll_wait", "error", err)
			return
		}
		if n == 0 {
			continue
		}
		if events[0].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			e.logger.Warn("evdev device hangup")
			e.mu.Lock()
			e.closeLocked()
			e.mu.Unlock()
			e.cb.externalStop(StopReasonDeviceDisconnected)
			return
		}
	}
}

func (e *evdevEngine) Stop() error {
	e.mu.Lock()
	stop, done := e.stopWatch, e.watchDone
	e.stopWatch, e.watchDone = nil, nil
	err := e.closeLocked()
	e.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return err
}

// closeLocked erases uploaded effects and closes the device. Must hold e.mu.
func (e *evdevEngine) closeLocked() error {
	if e.f == nil {
		return nil
	}
	fd := e.f.Fd()
	if e.levelID >= 0 {
		_ = ioctl(fd, eviocrmff, uintptr(e.levelID))
	}
	for _, id := range e.patternIDs {
		_ = ioctl(fd, eviocrmff, uintptr(id))
	}
	e.patternIDs = nil
	e.levelID = -1
	err := e.f.Close()
	e.f = nil
	return err
}

func (e *evdevEngine) Close() error { return e.Stop() }

func (e *evdevEngine) MakePlayer(p Pattern) (Player, error) {
	if p.Curve.Empty() {
		return nil, invalidParameter("empty %s curve", p.Curve.Kind)
	}
	return newCurvePlayer(p, e.caps.SupportsContinuousCurves, e.controlHz, e, e.logger), nil
}

// SetLevel implements levelSink. Each non-zero level re-uploads the rumble
// effect in place and (re)plays it; the replay length bounds how long a level
// survives if updates stop arriving.
func (e *evdevEngine) SetLevel(level float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.f == nil {
		if level <= 0 {
			return nil
		}
		return errNoEngine{}
	}

	if level <= 0 {
		if e.levelID < 0 {
			return nil
		}
		_, err := e.f.Write(playEvent(e.levelID, 0).encode())
		return err
	}

	strong, weak := rumbleMagnitudes(level)
	effect := rumbleEffect(e.levelID, strong, weak, evdevMaxLevelHoldMs)
	if err := ioctl(e.f.Fd(), eviocsff, uintptr(unsafe.Pointer(&effect[0]))); err != nil {
		return fmt.Errorf("upload rumble: %w", err)
	}
	e.levelID = effectID(effect)
	if _, err := e.f.Write(playEvent(e.levelID, 1).encode()); err != nil {
		return fmt.Errorf("play rumble: %w", err)
	}
	return nil
}

// PlayPattern uploads a raw struct ff_effect and plays it once.
func (e *evdevEngine) PlayPattern(data []byte) error {
	if len(data) != ffEffectSize {
		return invalidParameter("evdev pattern must be a %d-byte ff_effect, got %d bytes", ffEffectSize, len(data))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.f == nil {
		return errNoEngine{}
	}

	effect := append([]byte(nil), data...)
	setEffectID(effect, -1)
	if err := ioctl(e.f.Fd(), eviocsff, uintptr(unsafe.Pointer(&effect[0]))); err != nil {
		return fmt.Errorf("upload pattern: %w", err)
	}
	id := effectID(effect)
	e.patternIDs = append(e.patternIDs, id)
	if _, err := e.f.Write(playEvent(id, 1).encode()); err != nil {
		return fmt.Errorf("play pattern: %w", err)
	}
	return nil
}

func ioctl(fd, req, arg uintptr) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}
