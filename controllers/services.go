package controllers

import (
	"context"

	"wabot/services"
	"wabot/tools"

	"github.com/gin-gonic/gin"
)

const servicesKey = "services"

// GatewayLister lists the sessions the gateway knows about.
type GatewayLister interface {
	ListInstances(ctx context.Context) ([]tools.InstanceState, error)
}

// Services are the long-lived collaborators handlers need besides the database.
type Services struct {
	Lifecycle    *services.InstanceLifecycle
	Webhook      *services.WebhookRouter
	Gateway      GatewayLister
	WebhookToken string
}

func SetServicesToContext(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(servicesKey, s)
		c.Next()
	}
}

func ServicesInstance(c *gin.Context) *Services {
	v, ok := c.Get(servicesKey)
	if !ok {
		return nil
	}
	s, _ := v.(*Services)
	return s
}
