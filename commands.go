package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maxpert/pcbc/admin"
	"github.com/maxpert/pcbc/cfg"
	"github.com/maxpert/pcbc/compress"
	"github.com/maxpert/pcbc/pool"
	"github.com/maxpert/pcbc/telemetry"
	"github.com/maxpert/pcbc/transcoder"
	"github.com/maxpert/pcbc/transport"
)

type command func(args []string, out io.Writer) error

var commands = map[string]command{
	"encode":     runEncode,
	"decode":     runDecode,
	"compress":   runCompress,
	"decompress": runDecompress,
	"probe":      runProbe,
	"serve":      runServe,
}

var errUsage = errors.New("invalid arguments")

func runEncode(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	native := fs.Bool("native", false, "Serialize structured values with msgpack instead of JSON")
	asJSON := fs.Bool("json", false, "Parse the argument as a JSON document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: encode takes exactly one value", errUsage)
	}

	value, err := parseValue(fs.Arg(0), *asJSON)
	if err != nil {
		return err
	}

	tc := transcoder.Default()
	if *native {
		tc.Encoder.SerializationFormat = transcoder.SerializeNative
	}

	encoded, err := tc.Encode(value)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "flags:    0x%08x (%s)\n", encoded.Flags, transcoder.UnpackFlags(encoded.Flags))
	fmt.Fprintf(out, "datatype: %d\n", encoded.Datatype)
	fmt.Fprintf(out, "body:     %s\n", hex.EncodeToString(encoded.Bytes))
	return nil
}

// parseValue turns a command line argument into the Go value it most likely means
func parseValue(s string, asJSON bool) (interface{}, error) {
	if asJSON {
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON value: %w", err)
		}
		return v, nil
	}

	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f, nil
	}
	return s, nil
}

func runDecode(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	maps := fs.Bool("maps", false, "Decode JSON objects as plain maps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: decode takes flags and a hex body", errUsage)
	}

	flags, err := strconv.ParseUint(fs.Arg(0), 0, 32)
	if err != nil {
		return fmt.Errorf("invalid flags %q: %w", fs.Arg(0), err)
	}
	body, err := hex.DecodeString(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("invalid hex body: %w", err)
	}

	tc := transcoder.Default()
	if *maps {
		tc.Decoder.DecodeObjectsAsMaps = true
	}

	value, err := tc.Decode(body, uint32(flags), 0)
	if err != nil {
		return err
	}

	rendered, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%T %s\n", value, rendered)
	return nil
}

func runCompress(args []string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: compress takes a method", errUsage)
	}
	method, err := compress.ParseMethod(args[0])
	if err != nil {
		return err
	}

	var input []byte
	if len(args) > 1 {
		input = []byte(strings.Join(args[1:], " "))
	} else if input, err = io.ReadAll(os.Stdin); err != nil {
		return err
	}

	block, err := compress.Compress(input, method)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hex.EncodeToString(block))
	return nil
}

func runDecompress(args []string, out io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: decompress takes a method and a hex block", errUsage)
	}
	method, err := compress.ParseMethod(args[0])
	if err != nil {
		return err
	}
	block, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid hex block: %w", err)
	}

	data, err := compress.Decompress(block, method)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func newCache(connector transport.Connector) (*pool.Cache, error) {
	return pool.New(pool.Options{
		Connector:          connector,
		MaxIdleConnections: cfg.Config.Pool.MaxIdleConnections,
		BootstrapTimeout:   time.Duration(cfg.Config.Transport.BootstrapTimeoutMS) * time.Millisecond,
	})
}

func runProbe(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	kindName := fs.String("kind", "bucket", "Connection kind: bucket or cluster")
	bucket := fs.String("bucket", "", "Bucket name (bucket connections)")
	user := fs.String("user", "", "Username; the password is read from PCBC_PASSWORD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: probe takes a connection string", errUsage)
	}

	kind, err := transport.ParseKind(*kindName)
	if err != nil {
		return err
	}

	cache, err := newCache(transport.NewKVConnector(cfg.Config.Transport))
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Config.Transport.BootstrapTimeoutMS)*time.Millisecond)
	defer cancel()

	start := time.Now()
	lease, err := cache.Acquire(ctx, pool.Request{
		Kind:       kind,
		ConnString: fs.Arg(0),
		BucketName: *bucket,
		Username:   *user,
		Password:   os.Getenv("PCBC_PASSWORD"),
	})
	if err != nil {
		return err
	}
	defer lease.Release()

	if err := lease.Client().Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"connection": lease.Handle().Key().ConnString,
		"bucket":     lease.BucketName(),
		"elapsed":    time.Since(start).String(),
	})
}

func runServe(args []string, out io.Writer) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: serve takes no arguments", errUsage)
	}

	cache, err := newCache(transport.NewKVConnector(cfg.Config.Transport))
	if err != nil {
		return err
	}
	defer cache.Close()

	maxIdle := time.Duration(cfg.Config.Pool.MaxIdleSeconds) * time.Second

	if cfg.Config.Pool.SweepIntervalSeconds > 0 {
		janitor := pool.NewJanitor(cache, time.Duration(cfg.Config.Pool.SweepIntervalSeconds)*time.Second, maxIdle)
		janitor.Start()
		defer janitor.Stop()
	}

	collector := telemetry.NewMetricsCollector(cache, 5*time.Second)
	collector.Start()
	defer collector.Stop()

	var server *http.Server
	if cfg.Config.Admin.Enabled {
		mux := http.NewServeMux()
		admin.RegisterRoutes(mux, admin.NewAdminHandlers(cache, maxIdle), cfg.Config.Admin.Secret)
		if h := telemetry.GetMetricsHandler(); h != nil {
			mux.Handle("/metrics", h)
		}

		addr := net.JoinHostPort(cfg.Config.Admin.BindAddress, strconv.Itoa(cfg.Config.Admin.Port))
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", addr).Msg("Admin server failed")
			}
		}()
		log.Info().Str("addr", addr).Msg("Admin server listening")
	}

	log.Info().
		Dur("max_idle", maxIdle).
		Int("max_idle_connections", cfg.Config.Pool.MaxIdleConnections).
		Msg("Connection cache is operational")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("Shutting down")

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Admin server shutdown failed")
		}
	}
	return nil
}
