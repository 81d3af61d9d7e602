package usecase

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/govconnect/channel-gateway/domains/health"
	"github.com/govconnect/channel-gateway/infrastructure/bus"
	"github.com/govconnect/channel-gateway/infrastructure/provider"
	"github.com/govconnect/channel-gateway/pkg/circuit"
)

type serviceHealth struct {
	db       *gorm.DB
	bus      *bus.Client
	provider *provider.Client
	breakers []*circuit.Client
	version  string
}

func NewHealthService(db *gorm.DB, busClient *bus.Client, providerClient *provider.Client, version string, breakers ...*circuit.Client) health.IHealthUsecase {
	return &serviceHealth{
		db:       db,
		bus:      busClient,
		provider: providerClient,
		breakers: breakers,
		version:  version,
	}
}

func (service *serviceHealth) Check(ctx context.Context) *health.Report {
	report := &health.Report{
		Status:  health.StatusOk,
		Version: service.version,
	}

	report.Components = append(report.Components, service.checkDB(ctx))
	report.Components = append(report.Components, service.checkBus())
	report.Components = append(report.Components, service.checkProvider(ctx))

	for _, c := range service.breakers {
		if c == nil {
			continue
		}
		report.Breakers = append(report.Breakers, health.BreakerInfo{
			Name:  c.Name,
			State: c.BreakerState().String(),
		})
	}

	for _, component := range report.Components {
		switch component.Status {
		case health.StatusDown:
			// The gateway keeps accepting webhooks while the bus is down,
			// so a dead dependency degrades rather than kills the report.
			report.Status = health.StatusDegraded
		case health.StatusDegraded:
			if report.Status == health.StatusOk {
				report.Status = health.StatusDegraded
			}
		}
	}
	return report
}

func (service *serviceHealth) checkDB(ctx context.Context) health.Component {
	component := health.Component{Name: "database", Status: health.StatusOk}
	sqlDB, err := service.db.DB()
	if err != nil {
		component.Status = health.StatusDown
		component.Message = err.Error()
		return component
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		component.Status = health.StatusDown
		component.Message = err.Error()
	}
	return component
}

func (service *serviceHealth) checkBus() health.Component {
	component := health.Component{Name: "bus", Status: health.StatusOk}
	if service.bus == nil || !service.bus.IsConnected() {
		component.Status = health.StatusDown
		component.Message = "not connected"
	}
	return component
}

func (service *serviceHealth) checkProvider(ctx context.Context) health.Component {
	component := health.Component{Name: "provider", Status: health.StatusOk}
	if service.provider == nil {
		component.Status = health.StatusDown
		component.Message = "not configured"
		return component
	}
	if service.provider.DryRun() {
		component.Message = "dry run"
		return component
	}
	if !service.provider.HasSupportPlane() {
		component.Status = health.StatusDegraded
		component.Message = "support plane not configured"
	}
	return component
}
