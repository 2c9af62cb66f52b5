// Command neuromorphic-list enumerates attached cameras matching each known
// device profile, mirroring original_source/drivers/src/device.rs's
// list_serials_and_speeds.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/neuromorphicsystems/neuromorphic-drivers/devices"
	"github.com/neuromorphicsystems/neuromorphic-drivers/devices/prophesee_evk3_hd"
	"github.com/neuromorphicsystems/neuromorphic-drivers/devices/prophesee_evk4"
	"github.com/neuromorphicsystems/neuromorphic-drivers/internal/logging"
	"github.com/neuromorphicsystems/neuromorphic-drivers/usb/transport"
)

func main() {
	var verbose = flag.Bool("v", false, "verbose output")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.New(logConfig))

	t := transport.NewGousbTransport()
	defer t.Close()

	profiles := []devices.Profile{
		prophesee_evk3_hd.Profile{},
		prophesee_evk4.Profile{},
	}

	found := false
	for _, profile := range profiles {
		serials, err := devices.ListSerialsAndSpeeds(t, profile)
		if err != nil {
			logging.Errorf("list failed for vendor=0x%04x product=0x%04x: %v", profile.VendorID(), profile.ProductID(), err)
			continue
		}
		for _, serial := range serials {
			found = true
			fmt.Printf("%04x:%04x serial=%s\n", profile.VendorID(), profile.ProductID(), serial)
		}
	}

	if !found {
		fmt.Println("no devices found")
		os.Exit(1)
	}
}
