/*
Copyright 2025 PluginHub Authors
SPDX-License-Identifier: Apache-2.0
*/

package trampoline

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v75/github"
	"github.com/jonboulle/clockwork"
)

type fakeClient struct {
	cloudevents.Client

	events []cloudevents.Event
}

func (f *fakeClient) Send(_ context.Context, event cloudevents.Event) cloudevents.Result {
	f.events = append(f.events, event)
	return nil
}

func TestTrampoline(t *testing.T) {
	client := &fakeClient{}

	secret := []byte("hunter2")
	clock := clockwork.NewFakeClock()
	impl := NewServer(client, ServerOptions{
		Secrets: [][]byte{
			[]byte("badsecret"), // This secret should be ignored
			secret,
		},
	})
	impl.clock = clock

	srv := httptest.NewServer(impl)
	defer srv.Close()

	body := map[string]interface{}{
		"action": "opened",
		"repository": map[string]interface{}{
			"full_name": "pluginhub-dev/hub",
		},
		"pull_request": map[string]interface{}{
			"number": 7,
		},
	}
	resp, err := sendevent(t, srv.Client(), srv.URL, "pull_request", body, secret)
	if err != nil {
		t.Fatalf("error sending event: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %v", resp.Status)
	}

	// Generate expected event body
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("error encoding body: %v", err)
	}
	enc, err := json.Marshal(eventData{
		When: clock.Now(),
		Headers: &eventHeaders{
			HookID:     "1234",
			DeliveryID: "5678",
			UserAgent:  t.Name(),
			Event:      "pull_request",
		},
		Body: json.RawMessage(b),
	})
	if err != nil {
		t.Fatalf("error encoding body: %v", err)
	}

	want := []cloudevents.Event{{
		Context: cloudevents.EventContextV1{
			Type:            "dev.pluginhub.github.pull_request",
			Source:          *types.ParseURIRef("localhost"),
			ID:              "5678",
			DataContentType: cloudevents.StringOfApplicationJSON(),
			Subject:         github.Ptr("pluginhub-dev/hub"),
			Extensions: map[string]interface{}{
				"action":      "opened",
				"githubhook":  "1234",
				"pullrequest": "pluginhub-dev/hub#7",
			},
		}.AsV1(),
		DataEncoded: enc,
	}}
	if diff := cmp.Diff(want, client.events); diff != "" {
		t.Error(diff)
	}
}

func TestTrampolineRejectsBadSignature(t *testing.T) {
	client := &fakeClient{}
	impl := NewServer(client, ServerOptions{
		Secrets: [][]byte{[]byte("hunter2")},
	})

	srv := httptest.NewServer(impl)
	defer srv.Close()

	resp, err := sendevent(t, srv.Client(), srv.URL, "pull_request", map[string]interface{}{}, []byte("wrong"))
	if err != nil {
		t.Fatalf("error sending event: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status: %v", resp.Status)
	}
	if len(client.events) != 0 {
		t.Errorf("no event should have been forwarded, got %d", len(client.events))
	}
}

func TestTrampolineFiltersWebhookID(t *testing.T) {
	client := &fakeClient{}
	secret := []byte("hunter2")
	impl := NewServer(client, ServerOptions{
		Secrets:   [][]byte{secret},
		WebhookID: []string{"999"},
	})

	srv := httptest.NewServer(impl)
	defer srv.Close()

	resp, err := sendevent(t, srv.Client(), srv.URL, "pull_request", map[string]interface{}{}, secret)
	if err != nil {
		t.Fatalf("error sending event: %v", err)
	}
	// 202 is an ACK without action.
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status: %v", resp.Status)
	}
	if len(client.events) != 0 {
		t.Errorf("no event should have been forwarded, got %d", len(client.events))
	}
}

func sendevent(t *testing.T, client *http.Client, url string, eventType string, payload interface{}, secret []byte) (*http.Response, error) {
	t.Helper()

	b := new(bytes.Buffer)
	if err := json.NewEncoder(b).Encode(payload); err != nil {
		t.Fatalf("error encoding payload: %v", err)
	}

	// Compute the signature
	mac := hmac.New(sha256.New, secret)
	mac.Write(b.Bytes())
	sig := fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))

	r, err := http.NewRequest(http.MethodPost, url, b)
	if err != nil {
		return nil, err
	}
	r.Host = "localhost"
	r.Header.Add("Content-Type", "application/json")
	r.Header.Add(github.SHA256SignatureHeader, sig)
	r.Header.Add("X-GitHub-Event", eventType)
	r.Header.Add("X-GitHub-Hook-ID", "1234")
	r.Header.Add("X-GitHub-Delivery", "5678")
	r.Header.Set("User-Agent", t.Name())

	return client.Do(r)
}
