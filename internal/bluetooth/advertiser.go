package bluetooth

import (
	"context"
	"sync"

	"tinygo.org/x/bluetooth"

	"sea-radar.klederson.com/internal/presence"
)

type advertisement interface {
	Configure(options bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

// Advertiser publishes our presence as a BLE beacon. It implements
// presence.Publisher.
type Advertiser struct {
	mu      sync.Mutex
	adv     advertisement
	id      BeaconID
	name    string
	started bool
}

// NewAdvertiser uses the adapter's default advertisement.
func NewAdvertiser(adapter *bluetooth.Adapter, id BeaconID, name string) *Advertiser {
	return &Advertiser{adv: adapter.DefaultAdvertisement(), id: id, name: name}
}

// Publish replaces the advertised payload with p.
func (a *Advertiser) Publish(ctx context.Context, p presence.Peer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		if err := a.adv.Stop(); err != nil {
			return err
		}
		a.started = false
	}
	err := a.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName: a.name,
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: CompanyID, Data: EncodeBeacon(a.id, p)},
		},
	})
	if err != nil {
		return err
	}
	if err := a.adv.Start(); err != nil {
		return err
	}
	a.started = true
	return nil
}

// Stop ends advertising.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false
	return a.adv.Stop()
}
