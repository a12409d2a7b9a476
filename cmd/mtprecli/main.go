// Command mtprecli is a small flag-driven front end over this
// repository's core packages, giving mtp/supervisor/progress/sink a
// runnable entry point the way the teacher's main.go did for go-mtpfs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coredevices/mtprecorder/internal/rlog"
	"github.com/coredevices/mtprecorder/mtp"
	"github.com/coredevices/mtprecorder/progress"
	"github.com/coredevices/mtprecorder/sink"
	"github.com/coredevices/mtprecorder/supervisor"
)

func main() {
	mtpDebug := flag.Bool("mtp-debug", false, "log MTP request/response codes")
	usbDebug := flag.Bool("usb-debug", false, "raise the log level to debug and set Device.Debug.USB (no USB transport call is logged under it)")
	dataDebug := flag.Bool("data-debug", false, "hex-dump bulk payloads")
	wsAddr := flag.String("ws-addr", "", "if set, serve progress updates over websocket at this address (e.g. :8080)")
	flag.Parse()

	if len(flag.Args()) < 1 {
		log.Fatal("usage: mtprecli [flags] list|download <handle> <out-file>|upload <file>|delete <handle>")
	}

	rlog.SetDebug(*mtpDebug || *usbDebug || *dataDebug)
	mtpLog := rlog.For("mtp", *mtpDebug)
	supLog := rlog.For("supervisor", false)

	transport, err := mtp.OpenUSBTransport()
	if err != nil {
		log.Fatalf("open device: %v", err)
	}

	dev := mtp.NewDevice(transport, mtpLog)
	dev.Debug.MTP = *mtpDebug
	dev.Debug.USB = *usbDebug
	dev.Debug.Data = *dataDebug

	label, err := dev.ID()
	if err != nil {
		label = "unknown-device"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var obs progress.Observer
	if *wsAddr != "" {
		hub := progress.NewHub(rlog.For("progress", false))
		obs = hub
		http.HandleFunc("/progress", hub.HandleWS)
		go func() {
			if err := http.ListenAndServe(*wsAddr, nil); err != nil {
				supLog.WithError(err).Error("progress server exited")
			}
		}()
	}

	store := supervisor.NewMemoryStore()
	sv := supervisor.New(ctx, store, supLog)
	if err := sv.Connect(supervisor.NewLiveSession(dev), label); err != nil {
		log.Fatalf("connect: %v", err)
	}

	waitReady(store, label)
	serial := resolveSerial(store, label)

	switch flag.Arg(0) {
	case "list":
		runList(store, serial)
	case "download":
		runDownload(sv, store, serial, flag.Args()[1:])
	case "upload":
		runUpload(sv, serial, flag.Args()[1:])
	case "delete":
		runDelete(sv, serial, flag.Args()[1:])
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}

	if err := sv.Eject(serial); err != nil {
		log.Printf("eject: %v", err)
	}
}

func waitReady(store *supervisor.MemoryStore, label string) {
	// Connect's goroutine publishes DeviceAdded once Ready is reached;
	// a CLI run is short-lived enough that a tight poll is simpler than
	// wiring a dedicated completion channel through the Supervisor.
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Get(label); ok {
			return
		}
		for _, rec := range allRecords(store) {
			if rec.State == supervisor.Ready {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	log.Fatal("timed out waiting for device to become ready")
}

func allRecords(store *supervisor.MemoryStore) []supervisor.Record {
	var out []supervisor.Record
	for _, ev := range store.Events() {
		if ev.Kind != supervisor.DeviceRemoved {
			out = append(out, ev.Record)
		}
	}
	return out
}

func resolveSerial(store *supervisor.MemoryStore, label string) string {
	if _, ok := store.Get(label); ok {
		return label
	}
	for _, rec := range allRecords(store) {
		return rec.Serial
	}
	return label
}

func runList(store *supervisor.MemoryStore, serial string) {
	rec, ok := store.Get(serial)
	if !ok {
		log.Fatalf("no record for %q", serial)
	}
	for _, st := range rec.Storage {
		fmt.Printf("storage %#x: %q total=%d free=%d objects=%d\n",
			st.ID, st.Description, st.TotalBytes, st.FreeBytes, st.ObjectCount)
	}
}

func runDownload(sv *supervisor.Supervisor, store *supervisor.MemoryStore, serial string, args []string) {
	if len(args) != 2 {
		log.Fatal("usage: download <handle> <out-file>")
	}
	var handle uint32
	if _, err := fmt.Sscanf(args[0], "%d", &handle); err != nil {
		log.Fatalf("bad handle %q: %v", args[0], err)
	}

	sk := sink.NewMemorySink()
	if err := sv.DownloadLarge(serial, handle, sk, nil); err != nil {
		log.Fatalf("download: %v", err)
	}
	if err := os.WriteFile(args[1], sk.Bytes(serial), 0644); err != nil {
		log.Fatalf("write %s: %v", args[1], err)
	}
}

func runUpload(sv *supervisor.Supervisor, serial string, args []string) {
	if len(args) != 1 {
		log.Fatal("usage: upload <command-file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("read %s: %v", args[0], err)
	}
	if err := sv.UploadCommand(serial, data); err != nil {
		log.Fatalf("upload: %v", err)
	}
}

func runDelete(sv *supervisor.Supervisor, serial string, args []string) {
	if len(args) != 1 {
		log.Fatal("usage: delete <handle>")
	}
	var handle uint32
	if _, err := fmt.Sscanf(args[0], "%d", &handle); err != nil {
		log.Fatalf("bad handle %q: %v", args[0], err)
	}
	if err := sv.DeleteObject(serial, handle); err != nil {
		log.Fatalf("delete: %v", err)
	}
}
