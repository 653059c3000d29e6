package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/kasira/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectShop     = "shop"
	ObjectProduct  = "product"
	ObjectCustomer = "customer"
	ObjectSupplier = "supplier"
	ObjectGRN      = "grn"
	ObjectInvoice  = "invoice"
	ObjectPayment  = "payment"
	ObjectReminder = "reminder"
	ObjectAPIKey   = "api_key"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"

	ActionShopUpdate = "shop.update"

	ActionProductArchive     = "product.archive"
	ActionProductAdjustStock = "product.adjust_stock"

	ActionGRNReceive = "grn.receive"

	ActionInvoiceVoid = "invoice.void"
	ActionInvoiceSend = "invoice.send"

	ActionPaymentRecord = "payment.record"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the policy enforcer. When the database is not yet
// reachable the enforcer falls back to the embedded model with seeded
// role policies only, so the process can boot while the gateway keeps
// reconnecting in the background.
func NewEnforcer(gw *db.Gateway, log *zap.Logger) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if conn := gw.DB(); conn != nil {
		adapter, err := gormadapter.NewAdapterByDB(conn)
		if err != nil {
			log.Warn("casbin adapter unavailable, using in-memory policies", zap.Error(err))
		} else {
			enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
			if err != nil {
				return nil, err
			}
		}
	}
	if enforcer == nil {
		log.Warn("database unavailable at boot, authorization policies are in-memory only")
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err != nil {
			return nil, err
		}
	}

	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		log.Warn("casbin policy load failed", zap.Error(err))
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, role, shopID, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidRole
	}
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return ErrInvalidShop
	}
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	if object == "" || action == "" {
		return ErrForbidden
	}

	subject := fmt.Sprintf("key:%s", actor)
	roleName := fmt.Sprintf("role:%s", role)
	domain := fmt.Sprintf("shop:%s", shopID)

	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor", actor),
			zap.String("role", role),
			zap.String("shop_id", shopID),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps the subject bound to exactly one role per shop.
// A rotated key presenting a different role drops the stale binding.
func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	viewable := []string{
		ObjectShop, ObjectProduct, ObjectCustomer, ObjectSupplier,
		ObjectGRN, ObjectInvoice, ObjectPayment, ObjectReminder,
	}

	var policies [][]string

	// Owner gets everything.
	for _, object := range viewable {
		policies = append(policies,
			[]string{"role:owner", object, ActionView},
			[]string{"role:owner", object, ActionCreate},
			[]string{"role:owner", object, ActionUpdate},
		)
	}
	policies = append(policies,
		[]string{"role:owner", ObjectShop, ActionShopUpdate},
		[]string{"role:owner", ObjectProduct, ActionProductArchive},
		[]string{"role:owner", ObjectProduct, ActionProductAdjustStock},
		[]string{"role:owner", ObjectGRN, ActionGRNReceive},
		[]string{"role:owner", ObjectInvoice, ActionInvoiceVoid},
		[]string{"role:owner", ObjectInvoice, ActionInvoiceSend},
		[]string{"role:owner", ObjectPayment, ActionPaymentRecord},
		[]string{"role:owner", ObjectAPIKey, ActionAPIKeyView},
		[]string{"role:owner", ObjectAPIKey, ActionAPIKeyCreate},
		[]string{"role:owner", ObjectAPIKey, ActionAPIKeyRotate},
		[]string{"role:owner", ObjectAPIKey, ActionAPIKeyRevoke},
	)

	// Manager runs the shop day to day but cannot manage credentials.
	for _, object := range viewable {
		policies = append(policies,
			[]string{"role:manager", object, ActionView},
			[]string{"role:manager", object, ActionCreate},
			[]string{"role:manager", object, ActionUpdate},
		)
	}
	policies = append(policies,
		[]string{"role:manager", ObjectProduct, ActionProductArchive},
		[]string{"role:manager", ObjectProduct, ActionProductAdjustStock},
		[]string{"role:manager", ObjectGRN, ActionGRNReceive},
		[]string{"role:manager", ObjectInvoice, ActionInvoiceVoid},
		[]string{"role:manager", ObjectInvoice, ActionInvoiceSend},
		[]string{"role:manager", ObjectPayment, ActionPaymentRecord},
		[]string{"role:manager", ObjectAPIKey, ActionAPIKeyView},
	)

	// Cashier sells and collects.
	policies = append(policies,
		[]string{"role:cashier", ObjectProduct, ActionView},
		[]string{"role:cashier", ObjectCustomer, ActionView},
		[]string{"role:cashier", ObjectCustomer, ActionCreate},
		[]string{"role:cashier", ObjectInvoice, ActionView},
		[]string{"role:cashier", ObjectInvoice, ActionCreate},
		[]string{"role:cashier", ObjectInvoice, ActionInvoiceSend},
		[]string{"role:cashier", ObjectPayment, ActionView},
		[]string{"role:cashier", ObjectPayment, ActionPaymentRecord},
	)

	for _, policy := range policies {
		rule := []string{policy[0], "*", policy[1], policy[2]}
		if _, err := enforcer.AddPolicy(rule); err != nil {
			return err
		}
	}
	return nil
}
