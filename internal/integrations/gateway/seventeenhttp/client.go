package seventeenhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BearBump/ParcelDeck/internal/integrations/gateway"
	"github.com/BearBump/ParcelDeck/internal/models"
	"github.com/pkg/errors"
)

// Код успеха в ответах шлюза. Всё остальное — ошибка с сообщением.
const codeOK = 0

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.17track.net/track/v2.2"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type numberReq struct {
	Number string `json:"number"`
}

type trackResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Accepted []struct {
			Number  string `json:"number"`
			Carrier struct {
				Code string  `json:"code"`
				Name string  `json:"name"`
				Logo *string `json:"logo,omitempty"`
			} `json:"carrier"`
			Status            string     `json:"status"`
			SubStatus         string     `json:"sub_status"`
			TransitDays       int        `json:"transit_days"`
			EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
			Events            []struct {
				Time        time.Time `json:"time"`
				Location    string    `json:"location"`
				Description string    `json:"description"`
				SubStatus   string    `json:"sub_status"`
			} `json:"events"`
		} `json:"accepted"`
	} `json:"data"`
}

type carriersResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Carriers []struct {
			Code string  `json:"code"`
			Name string  `json:"name"`
			Logo *string `json:"logo,omitempty"`
		} `json:"carriers"`
	} `json:"data"`
}

func (c *Client) Register(ctx context.Context, trackNumber string) error {
	var r struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/register", []numberReq{{Number: trackNumber}}, &r); err != nil {
		return err
	}
	if r.Code != codeOK {
		return &gateway.Error{Code: r.Code, Message: r.Message}
	}
	return nil
}

func (c *Client) Query(ctx context.Context, trackNumbers []string) ([]gateway.TrackInfo, error) {
	body := make([]numberReq, 0, len(trackNumbers))
	for _, n := range trackNumbers {
		body = append(body, numberReq{Number: n})
	}

	var r trackResp
	if err := c.post(ctx, "/gettrackinfo", body, &r); err != nil {
		return nil, err
	}
	if r.Code != codeOK {
		return nil, &gateway.Error{Code: r.Code, Message: r.Message}
	}

	out := make([]gateway.TrackInfo, 0, len(r.Data.Accepted))
	for _, a := range r.Data.Accepted {
		ti := gateway.TrackInfo{
			TrackNumber:       a.Number,
			CarrierCode:       a.Carrier.Code,
			CarrierName:       a.Carrier.Name,
			CarrierLogo:       a.Carrier.Logo,
			Status:            a.Status,
			SubStatus:         a.SubStatus,
			TransitDays:       a.TransitDays,
			EstimatedDelivery: a.EstimatedDelivery,
		}
		for _, e := range a.Events {
			ti.Events = append(ti.Events, gateway.TrackEvent{
				EventTime: e.Time,
				Location:  e.Location,
				Message:   e.Description,
				SubStatus: e.SubStatus,
			})
		}
		out = append(out, ti)
	}
	return out, nil
}

func (c *Client) Carriers(ctx context.Context) ([]models.Carrier, error) {
	var r carriersResp
	if err := c.post(ctx, "/getcarriers", struct{}{}, &r); err != nil {
		return nil, err
	}
	if r.Code != codeOK {
		return nil, &gateway.Error{Code: r.Code, Message: r.Message}
	}

	out := make([]models.Carrier, 0, len(r.Data.Carriers))
	for _, cr := range r.Data.Carriers {
		out = append(out, models.Carrier{Code: cr.Code, Name: cr.Name, Logo: cr.Logo})
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("17token", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &gateway.Error{Code: resp.StatusCode, Message: fmt.Sprintf("gateway http %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
