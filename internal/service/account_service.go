package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"copytrader/internal/deriv"
	"copytrader/internal/models"
	"copytrader/internal/repository"
	"copytrader/pkg/utils"
)

// Ошибки сервиса аккаунтов
var (
	ErrMasterNotFound        = errors.New("master account not found")
	ErrMasterExists          = errors.New("master account already exists")
	ErrMasterInactive        = errors.New("master account is not active")
	ErrCopierNotFound        = errors.New("copier account not found")
	ErrCopierExists          = errors.New("copier account already follows this master")
	ErrInvalidToken          = errors.New("token rejected by trading platform")
	ErrValidationUnavailable = errors.New("token validation unavailable")
)

// RegisterMasterRequest - запрос на регистрацию мастера
type RegisterMasterRequest struct {
	UserID         string   `json:"-"`
	Token          string   `json:"token"`
	Label          string   `json:"label"`
	PerformanceFee *float64 `json:"performance_fee"`
}

// UpdateMasterRequest - частичное обновление мастера (nil поля не меняются)
type UpdateMasterRequest struct {
	Label          *string  `json:"label"`
	Token          *string  `json:"token"`
	Active         *bool    `json:"active"`
	PerformanceFee *float64 `json:"performance_fee"`
}

// RegisterCopierRequest - запрос на регистрацию копировщика
type RegisterCopierRequest struct {
	UserID         string   `json:"-"`
	MasterID       string   `json:"master_id"`
	Token          string   `json:"token"`
	StakeType      string   `json:"stake_type"`
	StakeAmount    *float64 `json:"stake_amount"`
	RiskMultiplier *float64 `json:"risk_multiplier"`
}

// UpdateCopierRequest - частичное обновление копировщика
type UpdateCopierRequest struct {
	Token          *string  `json:"token"`
	Active         *bool    `json:"active"`
	StakeType      *string  `json:"stake_type"`
	StakeAmount    *float64 `json:"stake_amount"`
	RiskMultiplier *float64 `json:"risk_multiplier"`
}

// AccountService управляет мастерами и копировщиками.
//
// Отвечает за:
// - Проверку токена на площадке при регистрации и смене токена
// - Шифрование токенов перед сохранением
// - Снимок баланса и прибыли мастера
// - Проверку владельца при чтении и изменении
//
// Реестр подписок подхватывает изменения при следующей синхронизации.
type AccountService struct {
	masters   MasterRepositoryInterface
	copiers   CopierRepositoryInterface
	validator CredentialValidator
	cipher    TokenCipher
	logger    *utils.Logger
}

// NewAccountService создает новый экземпляр AccountService.
func NewAccountService(masters MasterRepositoryInterface, copiers CopierRepositoryInterface, validator CredentialValidator, cipher TokenCipher, logger *utils.Logger) *AccountService {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &AccountService{
		masters:   masters,
		copiers:   copiers,
		validator: validator,
		cipher:    cipher,
		logger:    logger.WithComponent("accounts"),
	}
}

// ============ Мастера ============

// RegisterMaster регистрирует мастера.
//
// Параметры:
// - req.Token: токен площадки (проверяется авторизацией)
// - req.Label: подпись (опционально)
// - req.PerformanceFee: процент комиссии, по умолчанию 0
//
// Сохраняется полный снимок аккаунта, полученный при проверке.
//
// Возвращает:
// - *models.MasterAccount: созданный мастер
// - error: utils.ValidationErrors при некорректном вводе,
//          ErrInvalidToken если площадка отклонила токен,
//          ErrValidationUnavailable при таймауте или недоступности площадки
func (s *AccountService) RegisterMaster(ctx context.Context, req *RegisterMasterRequest) (*models.MasterAccount, error) {
	token := strings.TrimSpace(req.Token)
	label := strings.TrimSpace(req.Label)
	fee := 0.0
	if req.PerformanceFee != nil {
		fee = *req.PerformanceFee
	}

	var verr utils.ValidationErrors
	verr.Add("token", utils.ValidateToken(token))
	verr.Add("label", utils.ValidateLabel(label))
	verr.Add("performance_fee", utils.ValidatePerformanceFee(fee))
	if verr.HasErrors() {
		return nil, verr
	}

	attrs, err := s.validate(ctx, token)
	if err != nil {
		return nil, err
	}

	sealed, err := s.cipher.Seal(token)
	if err != nil {
		return nil, fmt.Errorf("seal token: %w", err)
	}

	master := &models.MasterAccount{
		UserID:         req.UserID,
		Label:          label,
		Token:          sealed,
		Active:         true,
		PerformanceFee: decimal.NewFromFloat(fee),
		Earnings:       decimal.Zero,
	}
	master.ApplyAttributes(attrs)

	if err := s.masters.Create(ctx, master); err != nil {
		if errors.Is(err, repository.ErrMasterExists) {
			return nil, ErrMasterExists
		}
		return nil, err
	}

	s.logger.Info("master registered",
		utils.MasterID(master.ID),
		utils.UserID(master.UserID),
		utils.String("account_kind", master.AccountKind),
	)

	return master, nil
}

// GetMaster возвращает мастера пользователя
func (s *AccountService) GetMaster(ctx context.Context, userID, id string) (*models.MasterAccount, error) {
	master, err := s.masters.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMasterNotFound) {
			return nil, ErrMasterNotFound
		}
		return nil, err
	}
	// чужой мастер неотличим от отсутствующего
	if master.UserID != userID {
		return nil, ErrMasterNotFound
	}
	return master, nil
}

// ListMasters возвращает мастеров пользователя (пустой список вместо nil)
func (s *AccountService) ListMasters(ctx context.Context, userID string) ([]*models.MasterAccount, error) {
	masters, err := s.masters.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if masters == nil {
		masters = []*models.MasterAccount{}
	}
	return masters, nil
}

// UpdateMaster применяет частичное обновление.
//
// Новый токен проверяется на площадке, снимок аккаунта обновляется вместе с ним.
func (s *AccountService) UpdateMaster(ctx context.Context, userID, id string, req *UpdateMasterRequest) (*models.MasterAccount, error) {
	master, err := s.GetMaster(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var verr utils.ValidationErrors
	if req.Label != nil {
		label := strings.TrimSpace(*req.Label)
		verr.Add("label", utils.ValidateLabel(label))
		master.Label = label
	}
	if req.PerformanceFee != nil {
		verr.Add("performance_fee", utils.ValidatePerformanceFee(*req.PerformanceFee))
		master.PerformanceFee = decimal.NewFromFloat(*req.PerformanceFee)
	}
	if req.Token != nil {
		verr.Add("token", utils.ValidateToken(strings.TrimSpace(*req.Token)))
	}
	if verr.HasErrors() {
		return nil, verr
	}
	if req.Active != nil {
		master.Active = *req.Active
	}

	tokenChanged := req.Token != nil
	if tokenChanged {
		token := strings.TrimSpace(*req.Token)
		attrs, err := s.validate(ctx, token)
		if err != nil {
			return nil, err
		}
		sealed, err := s.cipher.Seal(token)
		if err != nil {
			return nil, fmt.Errorf("seal token: %w", err)
		}
		master.Token = sealed
		master.ApplyAttributes(attrs)
	}

	if tokenChanged {
		err = s.masters.RotateToken(ctx, master)
	} else {
		err = s.masters.Update(ctx, master)
	}
	if err != nil {
		return nil, mapMasterError(err)
	}

	s.logger.Info("master updated",
		utils.MasterID(master.ID),
		utils.UserID(userID),
	)

	return master, nil
}

// RefreshMaster повторно проверяет токен мастера и перезаписывает снимок аккаунта
func (s *AccountService) RefreshMaster(ctx context.Context, userID, id string) (*models.MasterAccount, error) {
	master, err := s.GetMaster(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	token, err := s.openToken(master.Token)
	if err != nil {
		return nil, err
	}

	attrs, err := s.validate(ctx, token)
	if err != nil {
		return nil, err
	}
	master.ApplyAttributes(attrs)

	if err := s.masters.UpdateSnapshot(ctx, master); err != nil {
		return nil, mapMasterError(err)
	}

	s.logger.Debug("master snapshot refreshed", utils.MasterID(master.ID))

	return master, nil
}

// DeleteMaster удаляет мастера; копировщики удаляются каскадно, история остаётся
func (s *AccountService) DeleteMaster(ctx context.Context, userID, id string) error {
	if _, err := s.GetMaster(ctx, userID, id); err != nil {
		return err
	}
	if err := s.masters.Delete(ctx, id); err != nil {
		return mapMasterError(err)
	}

	s.logger.Info("master deleted", utils.MasterID(id), utils.UserID(userID))
	return nil
}

// ============ Копировщики ============

// RegisterCopier регистрирует копировщика для существующего активного мастера.
//
// Параметры по умолчанию: PERCENTAGE, 100, множитель 1.0.
// Тип аккаунта наследуется от мастера, от площадки берутся только login_id и email.
//
// Возвращает:
// - error: ErrMasterNotFound, ErrMasterInactive, ErrCopierExists,
//          utils.ValidationErrors, ErrInvalidToken, ErrValidationUnavailable
func (s *AccountService) RegisterCopier(ctx context.Context, req *RegisterCopierRequest) (*models.CopierAccount, error) {
	token := strings.TrimSpace(req.Token)
	stakeType := strings.ToUpper(strings.TrimSpace(req.StakeType))
	if stakeType == "" {
		stakeType = models.DefaultStakeType
	}
	stakeAmount := models.DefaultStakeAmount
	if req.StakeAmount != nil {
		stakeAmount = *req.StakeAmount
	}
	multiplier := models.DefaultRiskMultiplier
	if req.RiskMultiplier != nil {
		multiplier = *req.RiskMultiplier
	}

	var verr utils.ValidationErrors
	if strings.TrimSpace(req.MasterID) == "" {
		verr.Add("master_id", errors.New("master_id is required"))
	}
	verr.Add("token", utils.ValidateToken(token))
	verr.Add("stake_amount", utils.ValidateStakeAmount(stakeType, stakeAmount))
	verr.Add("risk_multiplier", utils.ValidateRiskMultiplier(multiplier))
	if verr.HasErrors() {
		return nil, verr
	}

	master, err := s.masters.GetByID(ctx, req.MasterID)
	if err != nil {
		return nil, mapMasterError(err)
	}
	if !master.Active {
		return nil, ErrMasterInactive
	}

	attrs, err := s.validate(ctx, token)
	if err != nil {
		return nil, err
	}

	sealed, err := s.cipher.Seal(token)
	if err != nil {
		return nil, fmt.Errorf("seal token: %w", err)
	}

	copier := &models.CopierAccount{
		UserID:         req.UserID,
		MasterID:       master.ID,
		Token:          sealed,
		LoginID:        attrs.LoginID,
		AccountKind:    master.AccountKind,
		Email:          attrs.Email,
		Active:         true,
		StakeType:      stakeType,
		StakeAmount:    &stakeAmount,
		RiskMultiplier: multiplier,
		ValidatedAt:    attrs.ValidatedAt,
	}

	if err := s.copiers.Create(ctx, copier); err != nil {
		return nil, mapCopierError(err)
	}

	s.logger.Info("copier registered",
		utils.CopierID(copier.ID),
		utils.MasterID(copier.MasterID),
		utils.UserID(copier.UserID),
	)

	return copier, nil
}

// ListCopiers возвращает копировщиков пользователя
func (s *AccountService) ListCopiers(ctx context.Context, userID string) ([]*models.CopierAccount, error) {
	copiers, err := s.copiers.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if copiers == nil {
		copiers = []*models.CopierAccount{}
	}
	return copiers, nil
}

// UpdateCopier применяет частичное обновление политики ставки, активности или токена
func (s *AccountService) UpdateCopier(ctx context.Context, userID, id string, req *UpdateCopierRequest) (*models.CopierAccount, error) {
	copier, err := s.GetCopier(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.StakeType != nil {
		copier.StakeType = strings.ToUpper(strings.TrimSpace(*req.StakeType))
	}
	if req.StakeAmount != nil {
		amount := *req.StakeAmount
		copier.StakeAmount = &amount
	}
	if req.RiskMultiplier != nil {
		copier.RiskMultiplier = *req.RiskMultiplier
	}

	var verr utils.ValidationErrors
	stakeAmount := 0.0
	if copier.StakeAmount != nil {
		stakeAmount = *copier.StakeAmount
	}
	verr.Add("stake_amount", utils.ValidateStakeAmount(copier.StakeType, stakeAmount))
	verr.Add("risk_multiplier", utils.ValidateRiskMultiplier(copier.RiskMultiplier))
	if req.Token != nil {
		verr.Add("token", utils.ValidateToken(strings.TrimSpace(*req.Token)))
	}
	if verr.HasErrors() {
		return nil, verr
	}
	if req.Active != nil {
		copier.Active = *req.Active
	}

	if req.Token != nil {
		token := strings.TrimSpace(*req.Token)
		attrs, err := s.validate(ctx, token)
		if err != nil {
			return nil, err
		}
		sealed, err := s.cipher.Seal(token)
		if err != nil {
			return nil, fmt.Errorf("seal token: %w", err)
		}
		copier.Token = sealed
		copier.LoginID = attrs.LoginID
		copier.Email = attrs.Email
		copier.ValidatedAt = attrs.ValidatedAt
	}

	if err := s.copiers.Update(ctx, copier); err != nil {
		return nil, mapCopierError(err)
	}

	s.logger.Info("copier updated",
		utils.CopierID(copier.ID),
		utils.MasterID(copier.MasterID),
	)

	return copier, nil
}

// DeleteCopier удаляет копировщика пользователя
func (s *AccountService) DeleteCopier(ctx context.Context, userID, id string) error {
	if _, err := s.GetCopier(ctx, userID, id); err != nil {
		return err
	}
	if err := s.copiers.Delete(ctx, id); err != nil {
		return mapCopierError(err)
	}

	s.logger.Info("copier deleted", utils.CopierID(id), utils.UserID(userID))
	return nil
}

// GetCopier возвращает копировщика пользователя
func (s *AccountService) GetCopier(ctx context.Context, userID, id string) (*models.CopierAccount, error) {
	copier, err := s.copiers.GetByID(ctx, id)
	if err != nil {
		return nil, mapCopierError(err)
	}
	if copier.UserID != userID {
		return nil, ErrCopierNotFound
	}
	return copier, nil
}

// ============ Вспомогательные ============

// validate проверяет токен на площадке и переводит ошибки в ошибки сервиса
func (s *AccountService) validate(ctx context.Context, token string) (*models.AccountAttributes, error) {
	attrs, err := s.validator.Validate(ctx, token)
	if err == nil {
		return attrs, nil
	}

	switch {
	case errors.Is(err, deriv.ErrInvalidCredentials), errors.Is(err, deriv.ErrEmptyToken):
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		s.logger.Warn("token validation failed", utils.Component("validator"), utils.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrValidationUnavailable, err)
	}
}

// openToken расшифровывает сохранённый токен
func (s *AccountService) openToken(sealed string) (string, error) {
	token, err := s.cipher.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("open token: %w", err)
	}
	return token, nil
}

func mapMasterError(err error) error {
	switch {
	case errors.Is(err, repository.ErrMasterNotFound):
		return ErrMasterNotFound
	case errors.Is(err, repository.ErrMasterExists):
		return ErrMasterExists
	}
	return err
}

func mapCopierError(err error) error {
	switch {
	case errors.Is(err, repository.ErrCopierNotFound):
		return ErrCopierNotFound
	case errors.Is(err, repository.ErrCopierExists):
		return ErrCopierExists
	case errors.Is(err, repository.ErrMasterNotFound):
		return ErrMasterNotFound
	}
	return err
}
