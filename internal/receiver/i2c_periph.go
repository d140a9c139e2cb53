package receiver

import (
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func openPeriph(bus string, addr uint16) (txer, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, nil, err
	}
	return &i2c.Dev{Addr: addr, Bus: b}, b, nil
}
