package domain

//go:generate mockgen -destination=mocks/mock_domain.go -package=mocks agri-auction/internal/domain Notifier,LeaderElection
