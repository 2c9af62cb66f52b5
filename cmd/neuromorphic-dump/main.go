// Command neuromorphic-dump opens one camera and streams its decoded DVS
// and trigger events to stdout as tab-separated fields, one event per line.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neuromorphicsystems/neuromorphic-drivers/devices"
	"github.com/neuromorphicsystems/neuromorphic-drivers/devices/prophesee_evk3_hd"
	"github.com/neuromorphicsystems/neuromorphic-drivers/devices/prophesee_evk4"
	"github.com/neuromorphicsystems/neuromorphic-drivers/internal/logging"
	"github.com/neuromorphicsystems/neuromorphic-drivers/types"
	"github.com/neuromorphicsystems/neuromorphic-drivers/usb/transport"
)

func main() {
	var (
		model   = flag.String("model", "evk4", "camera model: evk3-hd or evk4")
		serial  = flag.String("serial", "", "serial number to open (first match if empty)")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.New(logConfig))

	var profile devices.Profile
	switch *model {
	case "evk3-hd":
		profile = prophesee_evk3_hd.Profile{}
	case "evk4":
		profile = prophesee_evk4.Profile{}
	default:
		fmt.Fprintf(os.Stderr, "unknown model %q\n", *model)
		os.Exit(1)
	}

	t := transport.NewGousbTransport()
	defer t.Close()

	var serialPtr *string
	if *serial != "" {
		serialPtr = serial
	}

	device, err := devices.Open(t, serialPtr, profile, nil)
	if err != nil {
		logging.Errorf("open failed: %v", err)
		os.Exit(1)
	}
	defer device.Close()

	logging.Infof("opened %s serial=%s", *model, device.Serial())

	adapter := device.DecodeAdapter()
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	onDVS := func(e types.DvsEvent) {
		fmt.Fprintf(out, "dvs\t%d\t%d\t%d\t%d\n", e.T, e.X, e.Y, e.Polarity)
	}
	onTrigger := func(e types.TriggerEvent) {
		fmt.Fprintf(out, "trigger\t%d\t%d\t%d\n", e.T, e.ID, e.Polarity)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			return
		default:
		}

		view, err := device.Next(100 * time.Millisecond)
		if err != nil {
			logging.Errorf("next failed: %v", err)
			return
		}
		if view == nil {
			if err := device.Error(); err != nil {
				logging.Errorf("device error: %v", err)
				return
			}
			if w, ok := device.Overflow(); ok {
				logging.Warnf("ring overflow, backlog=%d", w.Backlog)
			}
			continue
		}

		adapter.Convert(view.Data, onDVS, onTrigger)
		view.Release()
		out.Flush()
	}
}
