package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	log "github.com/sirupsen/logrus"
)

const (
	defaultCheckInterval   = 10 * time.Second
	defaultCheckTimeout    = 2 * time.Second
	defaultDeregisterAfter = time.Minute
)

// Agent - часть consul agent API, которая нужна регистрации.
type Agent interface {
	ServiceRegister(service *consulapi.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// Config описывает регистрацию сервиса в Consul.
type Config struct {
	// Address - адрес агента Consul (host:port).
	Address     string
	ServiceName string
	ServiceID   string
	// AdvertiseAddr - host:port, по которому сервис доступен другим.
	AdvertiseAddr string
	// HealthURL - HTTP-проверка, которую агент будет опрашивать.
	HealthURL string
	Tags      []string
}

// Registrar регистрирует HTTP API в Consul и снимает регистрацию при остановке.
type Registrar struct {
	agent        Agent
	registration *consulapi.AgentServiceRegistration
	logger       *log.Entry
}

// NewRegistrar подключается к агенту Consul.
func NewRegistrar(cfg Config, logger *log.Entry) (*Registrar, error) {
	clientCfg := consulapi.DefaultConfig()
	if cfg.Address != "" {
		clientCfg.Address = cfg.Address
	}
	client, err := consulapi.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return NewRegistrarWithAgent(client.Agent(), cfg, logger)
}

// NewRegistrarWithAgent собирает регистрацию поверх готового агента.
func NewRegistrarWithAgent(agent Agent, cfg Config, logger *log.Entry) (*Registrar, error) {
	if agent == nil {
		return nil, errors.New("consul agent is required")
	}
	registration, err := buildRegistration(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.WithField("component", "consul")
	}
	return &Registrar{agent: agent, registration: registration, logger: logger}, nil
}

func buildRegistration(cfg Config) (*consulapi.AgentServiceRegistration, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}
	host, portRaw, err := net.SplitHostPort(cfg.AdvertiseAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid advertise address %q: %w", cfg.AdvertiseAddr, err)
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("invalid advertise port %q", portRaw)
	}

	id := cfg.ServiceID
	if id == "" {
		id = fmt.Sprintf("%s-%s-%d", cfg.ServiceName, host, port)
	}

	registration := &consulapi.AgentServiceRegistration{
		ID:      id,
		Name:    cfg.ServiceName,
		Address: host,
		Port:    port,
		Tags:    cfg.Tags,
	}
	if cfg.HealthURL != "" {
		registration.Check = &consulapi.AgentServiceCheck{
			HTTP:                           cfg.HealthURL,
			Interval:                       defaultCheckInterval.String(),
			Timeout:                        defaultCheckTimeout.String(),
			DeregisterCriticalServiceAfter: defaultDeregisterAfter.String(),
		}
	}
	return registration, nil
}

// ServiceID - идентификатор регистрации.
func (r *Registrar) ServiceID() string { return r.registration.ID }

// Register публикует сервис в каталоге Consul.
func (r *Registrar) Register() error {
	if err := r.agent.ServiceRegister(r.registration); err != nil {
		return fmt.Errorf("register service %s: %w", r.registration.ID, err)
	}
	r.logger.WithFields(log.Fields{
		"service_id": r.registration.ID,
		"address":    net.JoinHostPort(r.registration.Address, strconv.Itoa(r.registration.Port)),
	}).Info("service registered in consul")
	return nil
}

// Deregister снимает регистрацию; ошибка только логируется вызывающей стороной.
func (r *Registrar) Deregister() error {
	if err := r.agent.ServiceDeregister(r.registration.ID); err != nil {
		return fmt.Errorf("deregister service %s: %w", r.registration.ID, err)
	}
	r.logger.WithField("service_id", r.registration.ID).Info("service deregistered from consul")
	return nil
}
