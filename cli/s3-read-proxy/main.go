package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"

	"github.com/terrycain/s3-read-proxy/pkg/backend"
	"github.com/terrycain/s3-read-proxy/pkg/backend/azureblob"
	"github.com/terrycain/s3-read-proxy/pkg/backend/s3backend"
	"github.com/terrycain/s3-read-proxy/pkg/identity"
	"github.com/terrycain/s3-read-proxy/pkg/repository"
	"github.com/terrycain/s3-read-proxy/pkg/s"
	"github.com/terrycain/s3-read-proxy/pkg/sourceapi"
	"github.com/terrycain/s3-read-proxy/pkg/utils/logging"
	"github.com/terrycain/s3-read-proxy/pkg/web"
)

var cli struct {
	SourceAPIURL      string `env:"SOURCE_API_URL" help:"Base URL of the identity/repository metadata service"`
	SourceKey         string `env:"SOURCE_KEY" xor:"key" help:"Bearer credential for the metadata service"`
	SourceAPIKey      string `env:"SOURCE_API_KEY" xor:"key" name:"source-api-key" help:"Bearer credential for the metadata service (alias of SOURCE_KEY)"`
	SourceAPIProxyURL string `env:"SOURCE_API_PROXY_URL" help:"Optional forward HTTP proxy for reaching SOURCE_API_URL"`

	LogLevel             string `env:"LOG_LEVEL" default:"info" enum:"error,warn,info,debug,trace"`
	ListenAddress        string `env:"LISTEN_ADDR" default:"0.0.0.0:8080" help:"Listen address e.g. 0.0.0.0:8080"`
	MetricsListenAddress string `env:"METRICS_LISTEN_ADDR" default:"0.0.0.0:9102" help:"Listen address for prometheus metrics e.g. 0.0.0.0:9102"`
}

// bearerToken picks whichever of SOURCE_KEY/SOURCE_API_KEY was supplied;
// kong's xor group rejects setting both, but neither is individually
// required, so validate() below still has to check that at least one exists.
func bearerToken() string {
	if cli.SourceKey != "" {
		return cli.SourceKey
	}
	return cli.SourceAPIKey
}

func validate() error {
	var result *multierror.Error
	if cli.SourceAPIURL == "" {
		result = multierror.Append(result, fmt.Errorf("SOURCE_API_URL is required"))
	}
	if bearerToken() == "" {
		result = multierror.Append(result, fmt.Errorf("one of SOURCE_KEY or SOURCE_API_KEY is required"))
	}
	return result.ErrorOrNil()
}

func main() {
	kong.Parse(&cli)

	logging.SetupLogging(cli.LogLevel)

	// zerolog's "trace" level maps onto zerolog.TraceLevel via ParseLevel
	// already, so LOG_LEVEL's enum needs no further translation here.

	if err := validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	client, err := sourceapi.New(cli.SourceAPIURL, bearerToken(), cli.SourceAPIProxyURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build metadata API client")
	}

	identityResolver := identity.New(client)
	repositoryResolver := repository.New(client)

	backends := backend.NewRegistry(
		func(binding s.BackendBinding) (backend.Backend, error) {
			return s3backend.New(binding.S3)
		},
		func(binding s.BackendBinding) (backend.Backend, error) {
			return azureblob.New(binding.Azure)
		},
	)

	handlers := web.Handlers{
		Identity:   identityResolver,
		Repository: repositoryResolver,
		Backends:   backends,
	}

	router := web.GetRouter(cli.MetricsListenAddress, handlers, true)

	log.Info().Msgf("Listening on %s", cli.ListenAddress)
	if err := router.Run(cli.ListenAddress); err != nil {
		log.Fatal().Err(err).Msg("Failed HTTP server loop")
	}
}
