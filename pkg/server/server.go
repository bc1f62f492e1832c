// Package server assembles the services and HTTP routes of the API.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"tokenlease/pkg/accounts"
	"tokenlease/pkg/assets"
	"tokenlease/pkg/auth"
	"tokenlease/pkg/config"
	"tokenlease/pkg/custody"
	"tokenlease/pkg/events"
	"tokenlease/pkg/market"
	"tokenlease/pkg/rental"
	"tokenlease/pkg/response"
	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

type Options struct {
	Config    config.Config
	Store     store.Store
	Accounts  accounts.AccountRepository
	Issuer    *auth.Issuer
	Publisher events.Publisher
	// Hub serves /ws/events when set.
	Hub    *events.Hub
	Clock  tokens.Clock
	Logger *zap.Logger
	// Quiet drops the per-request access log.
	Quiet bool
}

type Services struct {
	Accounts accounts.AccountService
	Assets   assets.AssetService
	Market   market.MarketService
	Rental   rental.RentalService
	Custody  custody.CustodyService
}

// NewServices builds every controller over one store and one guard.
func NewServices(o Options) Services {
	guard := custody.NewGuard()
	policy := o.Config.SoldPolicy

	return Services{
		Accounts: accounts.NewAccountService(o.Accounts, o.Store, o.Issuer, o.Config.Auth.AdminEmail, o.Publisher, o.Clock, o.Logger),
		Assets:   assets.NewAssetService(o.Store, policy, o.Publisher, o.Clock, o.Logger),
		Market:   market.NewMarketService(o.Store, guard, policy, o.Publisher, o.Clock, o.Logger),
		Rental:   rental.NewRentalService(o.Store, guard, policy, o.Publisher, o.Clock, o.Logger),
		Custody:  custody.NewCustodyService(o.Store, guard, o.Publisher, o.Clock, o.Logger),
	}
}

func NewRouter(o Options, s Services) *gin.Engine {
	router := gin.New()
	if !o.Quiet {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowOrigins:     o.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: o.Config.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = []string{"*"}
	}
	router.Use(cors.New(corsCfg))

	authn := auth.Middleware(o.Issuer)

	accounts.NewAccountHandler(s.Accounts).RegisterRoutes(router, authn)
	assets.NewAssetHandler(s.Assets).RegisterRoutes(router, authn)
	market.NewMarketHandler(s.Market).RegisterRoutes(router, authn)
	rental.NewRentalHandler(s.Rental).RegisterRoutes(router, authn)
	custody.NewCustodyHandler(s.Custody).RegisterRoutes(router, authn)

	if o.Hub != nil {
		o.Hub.RegisterRoutes(router)
	}

	router.GET("/healthz", func(c *gin.Context) {
		response.SendAPIResponse(c, http.StatusOK, true, "ok", nil)
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}
