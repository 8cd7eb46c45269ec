package fake

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BearBump/ParcelDeck/internal/integrations/gateway"
	"github.com/BearBump/ParcelDeck/internal/models"
)

// FakeClient — демонстрационная заглушка шлюза для работы без API-ключа.
// Статус детерминирован по трек-номеру; незарегистрированные номера
// становятся видимыми только после Register, как у настоящего шлюза.
type FakeClient struct {
	mu         sync.Mutex
	registered map[string]struct{}
}

func New() *FakeClient {
	return &FakeClient{registered: map[string]struct{}{}}
}

var demoCarriers = []models.Carrier{
	{Code: "usps", Name: "USPS"},
	{Code: "china-post", Name: "China Post"},
	{Code: "cdek", Name: "CDEK"},
	{Code: "dhl", Name: "DHL"},
}

func (f *FakeClient) Register(ctx context.Context, trackNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[trackNumber] = struct{}{}
	return nil
}

func (f *FakeClient) Query(ctx context.Context, trackNumbers []string) ([]gateway.TrackInfo, error) {
	now := time.Now().UTC()

	var out []gateway.TrackInfo
	for _, num := range trackNumbers {
		f.mu.Lock()
		_, known := f.registered[num]
		f.mu.Unlock()
		if !known {
			continue
		}

		h := fnv.New32a()
		_, _ = h.Write([]byte(num))
		v := h.Sum32()

		// 20% треков считаем доставленными, остальные в пути.
		status := "IN_TRANSIT"
		transitDays := int(v%7) + 1
		if v%5 == 0 {
			status = "DELIVERED"
		}

		carrier := demoCarriers[int(v)%len(demoCarriers)]
		out = append(out, gateway.TrackInfo{
			TrackNumber: num,
			CarrierCode: carrier.Code,
			CarrierName: carrier.Name,
			Status:      status,
			SubStatus:   status,
			TransitDays: transitDays,
			Events: []gateway.TrackEvent{
				{
					EventTime: now.AddDate(0, 0, -transitDays),
					Location:  "Origin facility",
					Message:   "Shipment information received",
					SubStatus: "INFO_RECEIVED",
				},
				{
					EventTime: now,
					Location:  "Sorting center",
					Message:   "Fake carrier update",
					SubStatus: status,
				},
			},
		})
	}
	return out, nil
}

func (f *FakeClient) Carriers(ctx context.Context) ([]models.Carrier, error) {
	return demoCarriers, nil
}
