package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type provider struct {
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	Timezone   string `json:"timezone"`
}

type service struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

type slot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

var customers = []string{
	"Pedro Sánchez", "Laura Torres", "Carlos Ramírez", "Lucía Herrera",
	"Miguel Castro", "Sofía Navarro", "Diego Morales", "Valentina Ruiz",
}

// seed-bookings books random free slots through the public API, so every fixture passes
// the same validation and conflict checks as a real client.
func main() {
	var (
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking-service base url")
		count   = flag.Int("count", 20, "number of bookings to attempt")
		days    = flag.Int("days", 14, "how many days ahead to spread bookings")
		confirm = flag.Float64("confirm-ratio", 0.6, "share of bookings created as confirmed")
	)
	flag.Parse()
	base := strings.TrimRight(*baseURL, "/")
	client := &http.Client{Timeout: 10 * time.Second}

	var providers []provider
	if err := getJSON(client, base+"/api/v1/providers", &providers); err != nil {
		fatal(err.Error())
	}
	var services []service
	if err := getJSON(client, base+"/api/v1/services", &services); err != nil {
		fatal(err.Error())
	}
	if len(providers) == 0 {
		fatal("no providers available")
	}

	start := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	end := time.Now().UTC().AddDate(0, 0, *days).Format("2006-01-02")

	results := map[int]int{}
	for i := 0; i < *count; i++ {
		p := providers[rand.IntN(len(providers))]
		var svc *service
		if len(services) > 0 {
			svc = &services[rand.IntN(len(services))]
		}

		url := fmt.Sprintf("%s/api/v1/slots?provider_id=%s&start_date=%s&end_date=%s&only_available=true", base, p.ProviderID, start, end)
		if svc != nil {
			url += "&service_id=" + svc.ServiceID
		}
		var slots []slot
		if err := getJSON(client, url, &slots); err != nil {
			fatal(err.Error())
		}
		if len(slots) == 0 {
			results[0]++
			continue
		}
		s := slots[rand.IntN(len(slots))]

		customer := customers[rand.IntN(len(customers))]
		body := map[string]string{
			"provider_id":    p.ProviderID,
			"title":          "Consultation - " + customer,
			"customer_name":  customer,
			"customer_email": strings.ToLower(strings.ReplaceAll(customer, " ", ".")) + "@email.com",
			"start_time":     s.StartTime,
			"end_time":       s.EndTime,
		}
		if svc != nil {
			body["service_id"] = svc.ServiceID
			body["title"] = svc.Name + " - " + customer
		}
		if rand.Float64() < *confirm {
			body["status"] = "confirmed"
		}

		status, err := postJSON(client, base+"/api/v1/bookings", body, uuid.NewString())
		if err != nil {
			fatal(err.Error())
		}
		results[status]++
	}

	for status, n := range results {
		if status == 0 {
			fmt.Printf("no_free_slot=%d\n", n)
			continue
		}
		fmt.Printf("status=%d count=%d\n", status, n)
	}
}

func getJSON(client *http.Client, url string, dst any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func postJSON(client *http.Client, url string, body any, idempotencyKey string) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
