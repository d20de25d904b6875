package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taglayer/internal/consent"
	"taglayer/pkg/types"
)

type stubService struct {
	ready    bool
	pushed   []types.Entry
	defaults []map[string]string
	updates  []map[string]string
}

func (s *stubService) Push(e types.Entry) { s.pushed = append(s.pushed, e) }

func (s *stubService) SetConsentDefaults(state map[string]string, opts *types.ConsentOptions) error {
	if _, _, err := consent.Default(state, opts); err != nil {
		return err
	}
	s.defaults = append(s.defaults, state)
	return nil
}

func (s *stubService) UpdateConsent(state map[string]string, opts *types.ConsentOptions) error {
	if _, _, err := consent.Update(state, opts); err != nil {
		return err
	}
	s.updates = append(s.updates, state)
	return nil
}

func (s *stubService) Diagnostics() types.Diagnostics {
	return types.Diagnostics{Initialized: true, Ready: s.ready, LayerName: "eventLayer"}
}

func (s *stubService) IsReady() bool { return s.ready }

func TestStatusEndpoint(t *testing.T) {
	svc := &stubService{ready: true}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var d types.Diagnostics
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !d.Initialized || !d.Ready || d.LayerName != "eventLayer" {
		t.Fatalf("unexpected diagnostics: %+v", d)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	svc := &stubService{}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz while loading = %d", resp.StatusCode)
	}

	svc.ready = true
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz when ready = %d", resp.StatusCode)
	}
}

func TestPushEndpoint(t *testing.T) {
	svc := &stubService{}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/push", "application/json", strings.NewReader(`{"data":{"event":"page_view","page":"/home"}}`))
	if err != nil {
		t.Fatalf("POST /push: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("push = %d", resp.StatusCode)
	}
	if len(svc.pushed) != 1 || svc.pushed[0].Kind != types.KindEvent {
		t.Fatalf("push not forwarded: %+v", svc.pushed)
	}
	if svc.pushed[0].Data["event"] != "page_view" {
		t.Fatalf("payload lost: %+v", svc.pushed[0].Data)
	}
}

func TestPushRejectsBadRequests(t *testing.T) {
	svc := &stubService{}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	cases := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"wrong content type", "text/plain", `{"data":{"event":"x"}}`, http.StatusUnsupportedMediaType},
		{"invalid json", "application/json", `{"data":`, http.StatusBadRequest},
		{"empty data", "application/json", `{"data":{}}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/push", tc.contentType, strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST /push: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
			var er types.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if er.Code != tc.want || er.Error == "" {
				t.Fatalf("unexpected error payload: %+v", er)
			}
		})
	}
	if len(svc.pushed) != 0 {
		t.Fatalf("rejected requests must not forward: %+v", svc.pushed)
	}
}

func TestConsentEndpoints(t *testing.T) {
	svc := &stubService{}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	body := `{"state":{"ad_storage":"denied","analytics_storage":"denied"},"regions":["NL"],"wait_for_update_millis":500}`
	resp, err := http.Post(srv.URL+"/consent/default", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /consent/default: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("consent default = %d", resp.StatusCode)
	}
	if len(svc.defaults) != 1 {
		t.Fatalf("default not forwarded")
	}

	resp, err = http.Post(srv.URL+"/consent/update", "application/json", strings.NewReader(`{"state":{"ad_storage":"granted"}}`))
	if err != nil {
		t.Fatalf("POST /consent/update: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("consent update = %d", resp.StatusCode)
	}
	if len(svc.updates) != 1 {
		t.Fatalf("update not forwarded")
	}
}

func TestConsentValidationMapsTo400(t *testing.T) {
	svc := &stubService{}
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	cases := []string{
		`{"state":{}}`,
		`{"state":{"bogus_key":"denied"}}`,
		`{"state":{"ad_storage":"maybe"}}`,
	}
	for _, body := range cases {
		resp, err := http.Post(srv.URL+"/consent/default", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /consent/default: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
	if len(svc.defaults) != 0 {
		t.Fatalf("invalid consent must not forward")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewMux(&stubService{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
}

func TestSecurityHeader(t *testing.T) {
	srv := httptest.NewServer(NewMux(&stubService{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
}
