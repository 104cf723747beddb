package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftvault/internal/keyring"
	"github.com/openmined/syftvault/internal/upload"
	"github.com/openmined/syftvault/internal/uploadstore"
	"github.com/openmined/syftvault/internal/utils"
	"github.com/openmined/syftvault/internal/vaultsdk"
	"github.com/openmined/syftvault/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	defaultDBPath  = filepath.Join(home, ".syftvault", "uploads.db")
	configFileName = "config"
)

var cyan = color.New(color.FgHiCyan, color.Bold).SprintFunc()

var rootCmd = &cobra.Command{
	Use:     "syftvault",
	Short:   "SyftVault CLI",
	Version: version.Detailed(),
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an encrypted file to the vault",
	Long: `Upload an encrypted file to the vault via resumable multipart upload.

The file must already be encrypted; its wrapped file key is read from the
sidecar record <file>.vkey produced by the encryption step. Interrupted
uploads resume from the last confirmed part.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fmt.Println(cyan(version.AppName), version.Short())
		return runUpload(cmd.Context(), args[0])
	},
}

func init() {
	uploadCmd.Flags().SortFlags = false
	uploadCmd.Flags().StringP("server", "s", "", "Vault coordinator URL")
	uploadCmd.Flags().StringP("db", "d", defaultDBPath, "Upload session database")
	uploadCmd.Flags().String("collection", "", "Destination collection ID")
	uploadCmd.Flags().String("tier", "standard", "Upload tier (basic, standard, privileged)")
	uploadCmd.Flags().Duration("part-timeout", 5*time.Minute, "Timeout per part upload")
	uploadCmd.PersistentFlags().StringP("config", "c", "", "SyftVault config file")
	rootCmd.AddCommand(uploadCmd)
}

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".syftvault"))
		viper.AddConfigPath(filepath.Join(home, ".config/syftvault"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("db_path", cmd.Flags().Lookup("db"))
	viper.BindPFlag("collection_id", cmd.Flags().Lookup("collection"))
	viper.BindPFlag("tier", cmd.Flags().Lookup("tier"))
	viper.BindPFlag("part_timeout", cmd.Flags().Lookup("part-timeout"))

	viper.SetEnvPrefix("SYFTVAULT")
	viper.AutomaticEnv()

	return nil
}

func runUpload(ctx context.Context, path string) error {
	serverURL := viper.GetString("server_url")
	if serverURL == "" {
		return fmt.Errorf("server url missing")
	}
	collectionID := viper.GetString("collection_id")
	if collectionID == "" {
		return fmt.Errorf("collection id missing")
	}
	collectionKey, err := base64.StdEncoding.DecodeString(viper.GetString("collection_key"))
	if err != nil || len(collectionKey) == 0 {
		return fmt.Errorf("collection key missing or invalid")
	}

	localPath, err := utils.ResolvePath(path)
	if err != nil {
		return err
	}
	if !utils.FileExists(localPath) {
		return fmt.Errorf("no such file: %s", localPath)
	}

	fileHash, err := utils.FileHash(localPath)
	if err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	store := uploadstore.NewStore(viper.GetString("db_path"))
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	keySource, err := loadKeySource(store, localPath, fileHash, collectionID)
	if err != nil {
		return err
	}

	sdk := vaultsdk.New(serverURL,
		vaultsdk.WithAuthToken(viper.GetString("auth_token")),
		vaultsdk.WithTimeout(30*time.Second))

	orchestrator := upload.NewOrchestrator(&upload.Config{
		Resolver: keyring.NewResolver(
			keyring.StaticCollectionKeys{collectionID: collectionKey},
			keySource,
		),
		KeySource: keySource,
		Store:     store,
		Presigner: sdk,
		Transport: upload.NewPartTransport(upload.WithPartTimeout(viper.GetDuration("part_timeout"))),
		Completer: upload.NewCompletionAssembler(nil),
		Tier:      tierFromName(viper.GetString("tier")),
		Progress: func(uploaded, total int64) {
			slog.Debug("progress", "uploaded", uploaded, "total", total)
		},
	})

	objectKey, err := orchestrator.Upload(ctx, &upload.Request{
		LocalID:      localPath,
		FileHash:     fileHash,
		CollectionID: collectionID,
		Path:         localPath,
	})
	if err != nil {
		return err
	}

	fmt.Println("uploaded as", objectKey)
	return nil
}

// sidecarKeyRecord is the wrapped file key record the encryption step leaves
// next to the encrypted file.
type sidecarKeyRecord struct {
	WrappedKey string `json:"wrappedKey"`
	KeyNonce   string `json:"keyNonce"`
}

// loadKeySource prefers the sidecar record; when it is absent (for example
// after a crash on another working copy) the persisted session record still
// carries the wrapped key.
func loadKeySource(store *uploadstore.Store, localPath, fileHash, collectionID string) (keyring.KeyStore, error) {
	sidecar := localPath + ".vkey"
	if !utils.FileExists(sidecar) {
		return store, nil
	}

	data, err := os.ReadFile(sidecar)
	if err != nil {
		return nil, fmt.Errorf("read key record: %w", err)
	}
	var rec sidecarKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode key record: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(rec.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("decode wrapped key: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(rec.KeyNonce)
	if err != nil {
		return nil, fmt.Errorf("decode key nonce: %w", err)
	}

	keys := keyring.StaticKeyStore{}
	keys.Put(localPath, fileHash, collectionID, keyring.WrappedKeyRecord{Blob: blob, Nonce: nonce})
	return keys, nil
}

func tierFromName(name string) upload.Tier {
	switch name {
	case "privileged":
		return upload.TierPrivileged
	case "basic":
		return upload.TierBasic
	default:
		return upload.TierStandard
	}
}
