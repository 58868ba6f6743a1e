// Package sst25v drives SST25V-family serial NOR flash over four
// bit-banged GPIO lines: SPI mode 0, MSB first, chip enable active low.
//
// The driver is fully synchronous and owns the bus between Init and
// Disable. It holds no device state beyond the continuous-read flag;
// the write-enable latch and busy flag live on the chip itself. Methods
// must not be called concurrently from multiple goroutines, and Disable
// must be called before another controller drives the same lines.
//
// Program and erase follow NOR semantics: programming only clears bits
// (1 to 0), so a location must be erased back to 0xFF before it can
// hold arbitrary data. WriteBlock confirms each byte's completion
// internally; EraseBlock returns while the device is still busy and the
// caller synchronizes with WaitUntilReady.
//
// # Hardware Connection
//
//	Flash pin | Signal                  | Config field
//	----------+-------------------------+-------------
//	1: CE#    | chip enable, active low | CS
//	2: SO     | serial data out         | SO
//	3: WP#    | write protect           | (tie high)
//	4: VSS    | ground                  |
//	5: SI     | serial data in          | SI
//	6: SCK    | serial clock            | SCK
//	7: HOLD#  | transfer hold           | (tie high)
//	8: VDD    | 2.7V - 3.6V             |
//
// # Basic Usage
//
//	if _, err := host.Init(); err != nil {
//		log.Fatal(err)
//	}
//	f, err := sst25v.New(sst25v.Config{
//		CS:  gpioreg.ByName("GPIO8"),
//		SCK: gpioreg.ByName("GPIO11"),
//		SI:  gpioreg.ByName("GPIO10"),
//		SO:  gpioreg.ByName("GPIO9"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := f.Init(); err != nil {
//		log.Fatal(err)
//	}
//	buf := make([]byte, 256)
//	if err := f.ReadBlock(0, buf); err != nil {
//		log.Fatal(err)
//	}
//
// # References
//
//   - [SST25VF032B]: SST25VF032B 32 Mbit SPI Serial Flash datasheet (https://ww1.microchip.com/downloads/en/DeviceDoc/20005044C.pdf)
//   - [SST25VF016B]: SST25VF016B 16 Mbit SPI Serial Flash datasheet (https://www.microchip.com/en-us/product/sst25vf016b)
//   - [SST25VF010A]: SST25VF010A 1 Mbit SPI Serial Flash datasheet (https://www.microchip.com/en-us/product/sst25vf010a)
package sst25v
