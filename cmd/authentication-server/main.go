package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"

	"github.com/go-kit/log/level"

	"github.com/openshift/authgate/pkg/authservice"
	"github.com/openshift/authgate/pkg/logger"
)

type config struct {
	Principal authservice.Principal `json:"principal"`
	Groups    map[string][]string   `json:"groups"`
}

func main() {
	if len(os.Args) != 3 {
		stdlog.Fatalf("expected two arguments, the listen address and a path to a JSON file containing the principal and groups")
	}

	data, err := os.ReadFile(os.Args[2])
	if err != nil {
		stdlog.Fatalf("unable to read JSON file: %v", err)
	}

	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		stdlog.Fatalf("unable to parse contents of %s: %v", os.Args[2], err)
	}
	if cfg.Principal.Username == "" {
		stdlog.Fatalf("%s does not name a principal", os.Args[2])
	}

	lgr := logger.Default()
	level.Info(lgr).Log("msg", "authentication-server initialized.", "principal", cfg.Principal.Username, "groups", len(cfg.Groups))

	s := authservice.NewMock(lgr, cfg.Principal, cfg.Groups)

	if err := http.ListenAndServe(os.Args[1], s); err != nil {
		stdlog.Fatalf("server exited: %v", err)
	}
}
