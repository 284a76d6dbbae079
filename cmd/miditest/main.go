package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"fractal-sequence/clock"
	"fractal-sequence/midi"
	"fractal-sequence/pitch"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "watch":
		watchPorts(os.Args[2:])
	case "note":
		playNotes(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                       - List MIDI output ports")
	fmt.Println("  watch [filter]             - Report ports as they connect and disconnect")
	fmt.Println("  note -port P [notes...]    - Play notes (default 60 64 67) with optional -cents")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	names, err := midi.OutPorts(midi.ScanTimeout)
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	for i, n := range names {
		fmt.Printf("  %d: %s\n", i, n)
	}
}

func watchPorts(args []string) {
	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}
	fmt.Printf("Watching output ports matching %q. Ctrl+C to exit.\n", filter)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	w := midi.NewPortWatcher(filter)
	go w.Run(ctx)
	for e := range w.Events() {
		fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), e.Type, e.Name)
	}
}

// playNotes sends each note through a PortSink, one step apart.
func playNotes(args []string) {
	fs := flag.NewFlagSet("note", flag.ExitOnError)
	port := fs.String("port", "", "output port name (substring match)")
	cents := fs.Float64("cents", 0, "microtonal offset applied to every note")
	gap := fs.Duration("gap", 250*time.Millisecond, "time between notes")
	channels := fs.Int("channels", 4, "number of channels to rotate over")
	fs.Parse(args)

	notes := []int{60, 64, 67}
	if fs.NArg() > 0 {
		notes = notes[:0]
		for _, a := range fs.Args() {
			n, err := strconv.Atoi(a)
			if err != nil {
				fmt.Printf("Bad note %q: %v\n", a, err)
				return
			}
			notes = append(notes, n)
		}
	}

	send, err := midi.OpenOut(*port)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}

	clk := clock.NewWall()
	defer clk.Close()
	if err := clk.Resume(context.Background()); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	count := min(max(*channels, 1), 16)
	chans := make([]uint8, 0, count)
	for ch := 0; ch < count; ch++ {
		chans = append(chans, uint8(ch))
	}
	sink := midi.NewPortSink(clk, send, midi.SinkOptions{Channels: chans})

	step := gap.Seconds()
	start := clk.CurrentTime() + 0.05
	for i, n := range notes {
		at := start + float64(i)*step
		fmt.Printf("  note %d%+.0f¢ at +%.2fs (bend %d)\n", n, *cents, at-start, pitch.Bend(*cents, midi.DefaultBendRange))
		if err := sink.TriggerNote(n, step*0.9, at, 0.8, *cents); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	time.Sleep(time.Duration(float64(len(notes))*step*float64(time.Second)) + 200*time.Millisecond)
	sink.Close()
	sent, failed := sink.Stats()
	fmt.Printf("Done! %d messages sent, %d failed\n", sent, failed)
}
