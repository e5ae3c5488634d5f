// Command thttpd serves a single directory tree over plain HTTP/1.1.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/baileyforrest/thttpd/serve"
)

var (
	workers    int
	verbosity  int
	cacheSize  int64
	noCompress bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thttpd <port> <path_to_serve>",
		Short: "A small static file server",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}

	flags := cmd.Flags()
	flags.IntVarP(&workers, "workers", "w", 0, "number of connection worker threads (0 picks a default)")
	flags.CountVarP(&verbosity, "verbose", "v", "increase logging verbosity, can be repeated")
	flags.Int64Var(&cacheSize, "cache-size", 0, "max resident bytes for the compression cache (0 = unbounded)")
	flags.BoolVar(&noCompress, "no-compress", false, "disable gzip compression of eligible responses")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	log := newLogger(verbosity)

	port, err := parsePort(args[0])
	if err != nil {
		return err
	}

	pathToServe := args[1]
	info, err := os.Stat(pathToServe)
	if err != nil {
		return errors.Wrapf(err, "cannot serve %q", pathToServe)
	}
	if !info.IsDir() {
		return errors.Errorf("%q is not a directory", pathToServe)
	}

	cfg := serve.Config{
		Port:              port,
		PathToServe:       pathToServe,
		NumWorkerThreads:  workers,
		CacheSizeBytes:    cacheSize,
		EnableCompression: !noCompress,
	}

	s, err := serve.New(cfg, log.WithField("component", "server"))
	if err != nil {
		return errors.Wrap(err, "failed to start server")
	}
	defer s.Stop()

	return s.Start()
}

func parsePort(text string) (uint16, error) {
	n, err := strconv.ParseUint(text, 10, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid port %q", text)
	}
	if n == 0 {
		return 0, errors.Errorf("port must be between 1 and 65535, got %q", text)
	}
	return uint16(n), nil
}

// newLogger maps a -v count to a logrus level: 0 is Warn, 1 is Info, 2+ is
// Debug.
func newLogger(count int) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case count >= 2:
		log.SetLevel(logrus.DebugLevel)
	case count == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}

	return logrus.NewEntry(log)
}

func main() {
	// Writing to a socket after the peer has reset the connection raises
	// SIGPIPE; every write happens through the handler's non-blocking,
	// per-connection code path, which already turns that into an EPIPE
	// return value once the signal is ignored.
	signal.Ignore(syscall.SIGPIPE)

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
