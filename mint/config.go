package mint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blindmint/cashu/cashu/nuts/nut06"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/joho/godotenv"
)

// UnitLimits holds the mint/melt amount bounds the mint enforces for one
// supported unit (e.g. "sat", "usd").
type UnitLimits struct {
	MaxBalance      uint64
	MintingSettings MintMethodSettings
	MeltingSettings MeltMethodSettings
}

type MintMethodSettings struct {
	MinAmount uint64
	MaxAmount uint64
}

type MeltMethodSettings struct {
	MinAmount uint64
	MaxAmount uint64
}

// RotationPolicy controls how often the mint bumps a unit's active keyset
// to a fresh derivation-path index.
type RotationPolicy struct {
	// MaxKeysetAge is how long a keyset stays active before rotation
	// picks a fresh one; zero disables automatic rotation.
	MaxKeysetAge time.Duration
	// InputFeePpk is attached to every newly rotated keyset.
	InputFeePpk uint
}

type Config struct {
	Port   string
	DBPath string

	// UnitLimits is keyed by unit string; a unit with no entry runs
	// unbounded.
	UnitLimits map[string]UnitLimits
	Rotation   RotationPolicy

	// DualKeysetIDs exposes both the V1 and V2 keyset ID forms (NUT-02
	// v2) from /v1/keys instead of only the legacy V1 form.
	DualKeysetIDs bool

	// SagaStoreDSN is the connection string for the wallet-side saga
	// ledger; only meaningful for processes that embed a wallet engine
	// alongside a mint (e.g. integration harnesses).
	SagaStoreDSN string

	LogLevel slog.Level
}

func mustParseUint(name string, bits int) uint64 {
	val, ok := os.LookupEnv(name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(val, 10, bits)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return n
}

// unitLimitsFromEnv parses per-unit limits from variables of the form
// MINT_LIMITS_<UNIT>_MAX_BALANCE, _MINTING_MAX_AMOUNT, _MINTING_MIN_AMOUNT,
// _MELTING_MAX_AMOUNT, _MELTING_MIN_AMOUNT. The unit list itself comes
// from MINT_UNITS (comma-separated, defaults to "sat").
func unitLimitsFromEnv() map[string]UnitLimits {
	unitsEnv := os.Getenv("MINT_UNITS")
	if unitsEnv == "" {
		unitsEnv = "sat"
	}

	limits := make(map[string]UnitLimits)
	for _, unit := range strings.Split(unitsEnv, ",") {
		unit = strings.TrimSpace(strings.ToUpper(unit))
		if unit == "" {
			continue
		}
		prefix := "MINT_LIMITS_" + unit
		limits[strings.ToLower(unit)] = UnitLimits{
			MaxBalance: mustParseUint(prefix+"_MAX_BALANCE", 64),
			MintingSettings: MintMethodSettings{
				MinAmount: mustParseUint(prefix+"_MINTING_MIN_AMOUNT", 64),
				MaxAmount: mustParseUint(prefix+"_MINTING_MAX_AMOUNT", 64),
			},
			MeltingSettings: MeltMethodSettings{
				MinAmount: mustParseUint(prefix+"_MELTING_MIN_AMOUNT", 64),
				MaxAmount: mustParseUint(prefix+"_MELTING_MAX_AMOUNT", 64),
			},
		}
	}
	return limits
}

func logLevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConfig loads mint configuration from the environment, reading a
// .env file first if one is present in the working directory.
func GetConfig() Config {
	_ = godotenv.Load()

	rotationAge := time.Duration(mustParseUint("KEYSET_ROTATION_HOURS", 32)) * time.Hour

	var inputFeePpk uint
	if fee := mustParseUint("INPUT_FEE_PPK", 16); fee > 0 {
		inputFeePpk = uint(fee)
	}

	return Config{
		Port:          os.Getenv("MINT_PORT"),
		DBPath:        os.Getenv("MINT_DB_PATH"),
		UnitLimits:    unitLimitsFromEnv(),
		Rotation:      RotationPolicy{MaxKeysetAge: rotationAge, InputFeePpk: inputFeePpk},
		DualKeysetIDs: strings.EqualFold(os.Getenv("MINT_DUAL_KEYSET_IDS"), "true"),
		SagaStoreDSN:  os.Getenv("WALLET_SAGA_DB_PATH"),
		LogLevel:      logLevelFromEnv(),
	}
}

// getMintInfo returns information about the mint as
// defined in NUT-06: https://github.com/cashubtc/nuts/blob/main/06.md
func (m *Mint) getMintInfo() (*nut06.MintInfo, error) {
	mintInfo := nut06.MintInfo{
		Name:        os.Getenv("MINT_NAME"),
		Version:     "gonuts/0.0.1",
		Description: os.Getenv("MINT_DESCRIPTION"),
	}

	mintInfo.LongDescription = os.Getenv("MINT_DESCRIPTION_LONG")
	mintInfo.Motd = os.Getenv("MINT_MOTD")

	seed, err := m.db.GetSeed()
	if err != nil {
		return nil, err
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	publicKey, err := master.ECPubKey()
	if err != nil {
		return nil, err
	}

	mintInfo.Pubkey = hex.EncodeToString(publicKey.SerializeCompressed())

	contact := os.Getenv("MINT_CONTACT_INFO")
	var mintContactInfo []nut06.ContactInfo
	if len(contact) > 0 {
		var infoArr [][]string
		err := json.Unmarshal([]byte(contact), &infoArr)
		if err != nil {
			return nil, fmt.Errorf("error parsing contact info: %v", err)
		}

		for _, info := range infoArr {
			contactInfo := nut06.ContactInfo{Method: info[0], Info: info[1]}
			mintContactInfo = append(mintContactInfo, contactInfo)
		}
	}
	mintInfo.Contact = mintContactInfo

	nuts := nut06.NutsMap{
		4: nut06.NutSetting{
			Methods:  m.mintMethodSettings(),
			Disabled: false,
		},
		5: nut06.NutSetting{
			Methods:  m.meltMethodSettings(),
			Disabled: false,
		},
		7:  map[string]bool{"supported": true},
		8:  map[string]bool{"supported": false},
		9:  map[string]bool{"supported": true},
		10: map[string]bool{"supported": true},
		11: map[string]bool{"supported": true},
		12: map[string]bool{"supported": true},
		14: map[string]bool{"supported": true},
		15: map[string]bool{"supported": true},
		17: map[string]bool{"supported": false},
		20: map[string]bool{"supported": true},
	}

	mintInfo.Nuts = nuts
	return &mintInfo, nil
}

func (m *Mint) mintMethodSettings() []nut06.MethodSetting {
	methods := make([]nut06.MethodSetting, 0, len(m.limits))
	for unit, limits := range m.limits {
		methods = append(methods, nut06.MethodSetting{
			Method:    "bolt11",
			Unit:      unit,
			MinAmount: limits.MintingSettings.MinAmount,
			MaxAmount: limits.MintingSettings.MaxAmount,
		})
	}
	return methods
}

func (m *Mint) meltMethodSettings() []nut06.MethodSetting {
	methods := make([]nut06.MethodSetting, 0, len(m.limits))
	for unit, limits := range m.limits {
		methods = append(methods, nut06.MethodSetting{
			Method:    "bolt11",
			Unit:      unit,
			MinAmount: limits.MeltingSettings.MinAmount,
			MaxAmount: limits.MeltingSettings.MaxAmount,
		})
	}
	return methods
}
