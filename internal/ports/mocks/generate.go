//go:generate mockgen -source=../event_sink.go         -destination=./mock_event_sink.go         -package=mocks
//go:generate mockgen -source=../event_repository.go   -destination=./mock_event_repository.go   -package=mocks
//go:generate mockgen -source=../event_cache.go        -destination=./mock_event_cache.go        -package=mocks
//go:generate mockgen -source=../event_publisher.go    -destination=./mock_event_publisher.go    -package=mocks
//go:generate mockgen -source=../event_archive.go      -destination=./mock_event_archive.go      -package=mocks
//go:generate mockgen -source=../event_read_service.go -destination=./mock_event_read_service.go -package=mocks
//go:generate mockgen -source=../receiver.go           -destination=./mock_receiver.go           -package=mocks

package mocks
