package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
)

// ParamsVersion is the schema version of the API parameters in adaptor bindings.
const ParamsVersion = 1

// Params configures the public-api adaptor.
type Params struct {
	// Command is the remote tool identifier.
	Command     string `json:"command"`
	Protocol    string `json:"protocol"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	APIBasePath string `json:"api_base_path"`
	APIEndpoint string `json:"api_endpoint"`
	// RequestsPerSecond throttles calls to the service; zero disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
}

// DefaultParams returns the public-api defaults.
func DefaultParams() Params {
	return Params{Protocol: "http", Host: "localhost", RequestsPerSecond: 5, TimeoutSeconds: 30}
}

func (p *Params) InitParams() []adaptor.InitParam {
	port := ""
	if p.Port > 0 {
		port = strconv.Itoa(p.Port)
	}
	return []adaptor.InitParam{
		{Name: "command", Value: p.Command, Required: true},
		{Name: "protocol", Value: p.Protocol, Required: true},
		{Name: "host", Value: p.Host, Required: true},
		{Name: "port", Value: port},
		{Name: "api_base_path", Value: p.APIBasePath},
		{Name: "api_endpoint", Value: p.APIEndpoint},
	}
}

func (p *Params) ConnexionString() string {
	return fmt.Sprintf("%s://%s", p.Protocol, p.Host)
}

// CompleteURL returns protocol://host[:port][/base][/endpoint].
func (p *Params) CompleteURL() string {
	u := p.ConnexionString()
	if p.Port > 0 {
		u += ":" + strconv.Itoa(p.Port)
	}
	for _, part := range []string{p.APIBasePath, p.APIEndpoint} {
		if part = strings.Trim(part, "/"); part != "" {
			u += "/" + part
		}
	}
	return u
}

func (p *Params) query() map[string]string { return nil }

// KeyParams configures the api-key adaptor: every request carries the
// application key as the app_key query parameter.
type KeyParams struct {
	Params
	CryptAppKey string `json:"crypt_app_key"`
}

func (p *KeyParams) InitParams() []adaptor.InitParam {
	return append(p.Params.InitParams(), adaptor.InitParam{Name: "crypt_app_key", Value: p.CryptAppKey, Required: true})
}

func (p *KeyParams) query() map[string]string {
	return map[string]string{"app_key": p.CryptAppKey}
}

// settings is what the backend needs from either parameter struct.
type settings interface {
	adaptor.Config
	base() *Params
	query() map[string]string
}

func (p *Params) base() *Params    { return p }
func (p *KeyParams) base() *Params { return &p.Params }
