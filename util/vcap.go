package util

import (
	"encoding/json"
	"fmt"
	"os"
)

// VCAP_SERVICES holds the bound services when the worker runs on Cloud Foundry
const VCAP_SERVICES = "VCAP_SERVICES"

// HistoryServiceName is the bound postgres service used for job history
const HistoryServiceName = "espa-postgres"

// ParseVcapServices parses raw JSON VCAP_SERVICES into a useable object
func ParseVcapServices(data []byte) (VcapServices, error) {
	services := VcapServices{}
	err := json.Unmarshal(data, &services)
	return services, err
}

// VcapServices is a parsed VCAP_SERVICES JSON configuration
type VcapServices map[string][]VcapService

// FindServiceByName finds a service within VCAP_SERVICES, wherever it is nestled
func (s VcapServices) FindServiceByName(name string) *VcapService {
	for _, serviceArray := range s {
		for i := range serviceArray {
			if serviceArray[i].Name == name {
				return &serviceArray[i]
			}
		}
	}
	return nil
}

// VcapService is a parsed individual VCAP service; not all fields are parsed here
type VcapService struct {
	Name        string          `json:"name"`
	Credentials VcapCredentials `json:"credentials"`
}

// VcapCredentials is a parsed map of VCAP credentials for a service
type VcapCredentials map[string]interface{}

// String recovers the value at the given key, assuming it is a string
func (c VcapCredentials) String(key string) (string, error) {
	if val, ok := c[key]; !ok {
		return "", fmt.Errorf("Credential key does not exist: %s", key)
	} else if valStr, ok := val.(string); ok {
		return valStr, nil
	} else {
		return "", fmt.Errorf("Could not convert value to string: key=%s, value=%v", key, val)
	}
}

// GetVcapDatabaseURL returns the uri of the bound history service.
// The error explains which part of VCAP_SERVICES was missing.
func GetVcapDatabaseURL() (string, error) {
	raw, ok := os.LookupEnv(VCAP_SERVICES)
	if !ok || raw == "" {
		return "", fmt.Errorf("%s is not set", VCAP_SERVICES)
	}
	services, err := ParseVcapServices([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("no valid %s found: %v", VCAP_SERVICES, err)
	}
	service := services.FindServiceByName(HistoryServiceName)
	if service == nil {
		return "", fmt.Errorf("'%s' service not found", HistoryServiceName)
	}
	return service.Credentials.String("uri")
}
