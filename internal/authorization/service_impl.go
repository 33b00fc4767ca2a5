package authorization

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// Policies apply within a single domain.
const domain = "storefront"

const (
	ObjectWebhookFailure = "webhook_failure"
)

const (
	ActionWebhookFailureView   = "webhook_failure.view"
	ActionWebhookFailureReplay = "webhook_failure.replay"
)

const (
	SubjectOperator = "operator"
	SubjectViewer   = "viewer"

	roleOperator = "role:operator"
	roleViewer   = "role:viewer"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	tokens   map[string]string
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	tokens := map[string]string{}
	if token := strings.TrimSpace(p.Cfg.Admin.APIToken); token != "" {
		tokens[SubjectOperator] = token
	}
	if token := strings.TrimSpace(p.Cfg.Admin.ViewerToken); token != "" {
		tokens[SubjectViewer] = token
	}
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		tokens:   tokens,
	}
}

func (s *ServiceImpl) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	for subject, expected := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1 {
			return subject, nil
		}
	}
	return "", ErrUnauthorized
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject string, object string, action string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("subject", subject),
		zap.String("object", object),
		zap.String("action", action),
	)
	if !allowed {
		log.Warn("authorization denied")
		return ErrForbidden
	}
	if shouldAuditGrant(action) {
		log.Info("authorization granted")
	}
	return nil
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionWebhookFailureReplay:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleViewer, ObjectWebhookFailure, ActionWebhookFailureView},

		{roleOperator, ObjectWebhookFailure, ActionWebhookFailureView},
		{roleOperator, ObjectWebhookFailure, ActionWebhookFailureReplay},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{SubjectOperator, roleOperator, domain},
		{SubjectViewer, roleViewer, domain},
	}
	for _, grouping := range groupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}
