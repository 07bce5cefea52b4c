// Command pdp8 boots a memory image into a pdp8.System and free-runs it,
// printing the halt reason it stops on. It is a minimal demonstration
// binary in the teacher's cmd/standalone tradition (flag + log, one
// small main), not an SCP-style command interpreter: there is no
// interactive "deposit", "examine", or breakpoint sub-language here,
// only boot-and-run.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/user-none/pdp8go/console"
	"github.com/user-none/pdp8go/pdp8"
)

func main() {
	imagePath := flag.String("image", "", "path to a memory image (whitespace-separated octal words, one load per run)")
	fields := flag.Int("fields", 8, "installed memory-extension fields (1-8)")
	loadField := flag.Int("load-field", 0, "field the image is loaded into")
	loadAddr := flag.Int("load-addr", 0200, "octal address the image is loaded at")
	startAddr := flag.Int("start-addr", -1, "octal address to start at (defaults to -load-addr)")
	history := flag.Int("history", 0, "instruction history depth (0 disables)")
	userTraps := flag.Bool("user-traps", false, "trap IOT/HLT/OSR/JMS/JMP in user mode")
	stopInst := flag.Bool("stop-inst", false, "halt on an IOT addressed to an unattached device (default: silent no-op)")
	burst := flag.Int("burst", 10000, "instructions executed per console tick")
	interactive := flag.Bool("interactive", false, "read raw keystrokes from stdin ('q' requests a stop)")
	flag.Parse()

	if *imagePath == "" {
		log.Fatal("pdp8: -image is required")
	}

	sys := pdp8.NewSystem(
		pdp8.WithFields(*fields),
		pdp8.WithHistoryDepth(*history),
		pdp8.WithUserModeTraps(*userTraps),
		pdp8.WithStopOnIllegalInstruction(*stopInst),
	)

	if err := loadImage(sys, *imagePath, *loadField, *loadAddr); err != nil {
		log.Fatalf("pdp8: %v", err)
	}

	start := *startAddr
	if start < 0 {
		start = *loadAddr
	}
	sys.SetPC(*loadField, uint16(start))

	// PC/field are already set via SetPC above; Start itself only
	// zeroes AC/MB and disables ION, matching the front panel's own
	// Start switch.
	sw := &pdp8.Switches{Start: true}
	source := &switchFeed{sw: sw}
	sink := &statusSink{}

	if *interactive {
		stop, err := startKeyWatcher(source)
		if err != nil {
			log.Printf("pdp8: interactive mode unavailable: %v", err)
		} else {
			defer stop()
		}
	}

	runner := console.NewRunner(sys, source, sink, *burst)
	runner.OnAction(func(a pdp8.PendingAction) {
		log.Printf("pdp8: unhandled front-panel action %d (arg %03o)", a.Kind, a.Arg)
	})

	var halt pdp8.HaltReason
	for {
		halt = runner.Update()
		if !sys.Running() {
			break
		}
	}

	regs := sys.Registers()
	fmt.Printf("halted: %s\n", halt)
	fmt.Printf("PC=%04o IF=%o DF=%o AC=%04o L=%o MQ=%04o\n",
		regs.PC, regs.IF, regs.DF, regs.AC, regs.L, regs.MQ)
}

// loadImage reads whitespace-separated octal words from path and deposits
// them into sys's memory starting at field*4096+addr, one word per
// token, advancing the address with wraparound within the field. This is
// a deliberately minimal textual format: no boot-loader source (BIN/RIM
// tape format) survived the original_source/ retrieval, and a paper-tape
// reader device is outside spec.md's scope.
func loadImage(sys *pdp8.System, path string, field, addr int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	mem := sys.Mem()
	ma := (field&07)*pdp8.FieldSize + (addr & pdp8.WordMask)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" || strings.HasPrefix(tok, "#") {
			continue
		}
		word, err := strconv.ParseUint(tok, 8, 16)
		if err != nil {
			return fmt.Errorf("parsing word %q: %w", tok, err)
		}
		mem.Set(ma, uint16(word)&pdp8.WordMask)
		ma++
	}
	return scanner.Err()
}

// switchFeed is a console.SwitchSource backed by a single persistent
// *pdp8.Switches, the analogue of a hard-wired panel with no physical
// operator: Start is asserted once at construction and nothing but the
// key watcher (in -interactive mode) ever raises Stop again.
type switchFeed struct {
	sw      *pdp8.Switches
	stopReq atomic.Bool
}

func (f *switchFeed) PollSwitches() *pdp8.Switches {
	if f.stopReq.Load() {
		f.sw.Stop = true
		f.stopReq.Store(false)
	}
	return f.sw
}

// statusSink is a console.LEDSink that just remembers the latest lamp
// state; main prints the final register snapshot itself rather than
// redrawing a panel every tick, since there is no GPIO/graphical front
// panel in scope.
type statusSink struct {
	last pdp8.LEDs
}

func (s *statusSink) SetLEDs(l pdp8.LEDs) { s.last = l }

// startKeyWatcher puts stdin into raw mode and watches for 'q', wiring
// it to feed.stopReq, in the same single-byte-nonblocking-read shape the
// pack's terminal hosts use for interactive consoles. It returns a
// cleanup func that restores the terminal.
func startKeyWatcher(feed *switchFeed) (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		_ = term.Restore(fd, oldState)
		return nil, err
	}

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1)
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			n, err := syscall.Read(fd, buf)
			if n > 0 && (buf[0] == 'q' || buf[0] == 'Q') {
				feed.stopReq.Store(true)
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || n == 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
		}
	}()

	return func() {
		close(stopCh)
		<-done
		_ = syscall.SetNonblock(fd, false)
		_ = term.Restore(fd, oldState)
	}, nil
}
