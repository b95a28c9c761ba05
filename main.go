package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/ansel1/merry/v2"
	"github.com/ebfe/scard"
	"go.uber.org/zap"

	"github.com/gregLibert/desfire/pkg/bits"
	"github.com/gregLibert/desfire/pkg/desfire"
	"github.com/gregLibert/desfire/pkg/iso7816"
	"github.com/gregLibert/desfire/pkg/link"
	"github.com/gregLibert/desfire/pkg/logging"
)

func main() {
	reader := flag.Int("reader", 0, "index of the PC/SC reader")
	aidHex := flag.String("aid", "", "application to select (3 bytes, hex)")
	dfHex := flag.String("df", "", "ISO DF name to select (hex)")
	fileNo := flag.Int("file", 0, "standard data file to read")
	length := flag.Int("length", 0, "bytes to read, 0 for the whole file")
	wrapped := flag.Bool("wrapped", true, "wrap native commands in ISO 7816 APDUs")
	flag.Parse()

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("Error creating logger: %s", err)
	}
	defer func() { _ = logger.Sync() }()

	// --- 1. Hardware Setup ---
	sctx, card := connectToCard(*reader)

	defer func() {
		if err := sctx.Release(); err != nil {
			log.Printf("Warning: Failed to release context: %v", err)
		}
	}()

	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.Printf("Warning: Failed to disconnect card: %v", err)
		}
	}()

	// --- 2. Engine Setup ---
	cfg := desfire.DefaultConfig()
	cfg.Wrapped = *wrapped
	cfg.Logger = logger

	l := link.NewLogging(link.NewPCSC(card, cfg.CommandBufferSize), logger)
	engine, err := desfire.New(l, cfg)
	if err != nil {
		fatal(logger, "engine setup failed", err)
	}

	// --- 3. Execution Flow ---
	ctx := context.Background()

	if err := step1GetVersion(ctx, engine); err != nil {
		fatal(logger, "GetVersion failed", err)
	}

	if *dfHex != "" {
		if err := step2SelectDF(ctx, engine, *dfHex); err != nil {
			fatal(logger, "ISO selection failed", err)
		}
	}

	if *aidHex == "" {
		fmt.Println("\n>> No application given, done.")
		return
	}

	if err := step3ReadFile(ctx, engine, *aidHex, byte(*fileNo), *length); err != nil {
		fatal(logger, "read failed", err)
	}

	s := engine.Session()
	fmt.Printf("\n>> Done (%d operations, last command %02X)\n", s.Counter(), s.LastCommand())
}

// =========================================================================
// Helper Functions
// =========================================================================

// connectToCard handles the PC/SC context establishment and reader connection.
func connectToCard(index int) (*scard.Context, *scard.Card) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatalf("Error establishing context: %s", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || index < 0 || index >= len(readers) {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("No smart card reader at index %d (%d found).", index, len(readers))
	}

	fmt.Printf(">> Using reader: %s\n", readers[index])

	card, err := ctx.Connect(readers[index], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("Error connecting to card: %s", err)
	}

	return ctx, card
}

func fatal(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	fmt.Fprintln(os.Stderr, merry.Details(err))
	_ = logger.Sync()
	os.Exit(1)
}

func banner(title string) {
	fmt.Println("\n=============================================")
	fmt.Println(" " + title)
	fmt.Println("=============================================")
}

// step1GetVersion reads the card version at card level.
func step1GetVersion(ctx context.Context, engine *desfire.Engine) error {
	banner("Step 1: GET VERSION")

	if err := engine.SelectApplication(ctx, desfire.RootAID); err != nil {
		return err
	}
	v, err := engine.GetVersion(ctx)
	if err != nil {
		return err
	}

	fmt.Println(v.Describe())
	return nil
}

// step2SelectDF selects an ISO DF by name and prints its FCI.
func step2SelectDF(ctx context.Context, engine *desfire.Engine, dfHex string) error {
	banner("Step 2: ISO SELECT BY DF NAME")

	name, err := hex.DecodeString(dfHex)
	if err != nil {
		return merry.Errorf("DF name %q: %w", dfHex, err)
	}

	fci, err := engine.ISOSelectFile(ctx, iso7816.SelectByDFName, iso7816.ReturnFCI, name)
	if err != nil {
		return err
	}

	fmt.Printf(">> Selected DF %X\n", name)
	fmt.Println(fci.Describe())
	return nil
}

// step3ReadFile selects the application and reads a standard data file.
func step3ReadFile(ctx context.Context, engine *desfire.Engine, aidHex string, fileNo byte, length int) error {
	banner(fmt.Sprintf("Step 3: READ FILE %d OF APPLICATION %s", fileNo, aidHex))

	raw, err := hex.DecodeString(aidHex)
	if err != nil || len(raw) != 3 {
		return merry.Errorf("application %q is not 3 hex bytes", aidHex)
	}
	if length < 0 || length > bits.MaxUint24 {
		return merry.Errorf("length %d out of range", length)
	}

	if err := engine.SelectApplication(ctx, [3]byte(raw)); err != nil {
		return err
	}

	data, err := engine.ReadData(ctx, desfire.CommPlain, fileNo, [3]byte{}, bits.PutUint24(uint32(length)))
	if err != nil {
		return err
	}

	fmt.Printf(">> %d bytes read\n", len(data))
	for chunk := range slices.Chunk(data, 16) {
		fmt.Printf("   %X\n", chunk)
	}
	return nil
}
