package camera

import (
	"fmt"
	"sort"
)

// DriverType はカメラドライバの種類
type DriverType string

const (
	DriverV4L2 DriverType = "v4l2" // Linux V4L2
	DriverMock DriverType = "mock" // テスト・デモ用
)

// DeviceConfig は設定ファイルで指定されるデバイス
type DeviceConfig struct {
	Device string // デバイスパス
	Facing Facing // 向き
}

// ProviderConfig はプロバイダ作成設定
type ProviderConfig struct {
	Devices       []DeviceConfig
	DefaultFacing Facing
	Format        PixelFormat // モックが生成するフォーマット
	Width         int
	Height        int
}

// ProviderCreator はプロバイダ作成関数の型
type ProviderCreator func(config ProviderConfig) (Provider, error)

// ProviderFactory はドライバ種別からプロバイダを作成する
type ProviderFactory struct {
	creators map[DriverType]ProviderCreator
}

// NewProviderFactory は標準のドライバを登録したファクトリーを作成する
func NewProviderFactory() *ProviderFactory {
	factory := &ProviderFactory{
		creators: make(map[DriverType]ProviderCreator),
	}

	factory.Register(DriverV4L2, NewV4L2ProviderFromConfig)
	factory.Register(DriverMock, NewMockProviderFromConfig)

	return factory
}

// Register はプロバイダ作成関数を登録する
func (f *ProviderFactory) Register(driver DriverType, creator ProviderCreator) {
	f.creators[driver] = creator
}

// Create はプロバイダを作成する
func (f *ProviderFactory) Create(driver DriverType, config ProviderConfig) (Provider, error) {
	creator, exists := f.creators[driver]
	if !exists {
		return nil, fmt.Errorf("サポートされていないドライバ: %s", driver)
	}

	return creator(config)
}

// SupportedDrivers は登録済みのドライバ種別を名前順に返す
func (f *ProviderFactory) SupportedDrivers() []DriverType {
	drivers := make([]DriverType, 0, len(f.creators))
	for driver := range f.creators {
		drivers = append(drivers, driver)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i] < drivers[j] })
	return drivers
}

// NewV4L2ProviderFromConfig は設定からV4L2Providerを作成する
func NewV4L2ProviderFromConfig(config ProviderConfig) (Provider, error) {
	facings := make(map[string]Facing, len(config.Devices))
	for _, d := range config.Devices {
		if d.Device == "" {
			return nil, fmt.Errorf("V4L2デバイスにはデバイスパスが必要です")
		}
		facings[d.Device] = d.Facing
	}

	return NewV4L2Provider(NewLinuxDiscovery(), V4L2Options{
		Facings:       facings,
		DefaultFacing: config.DefaultFacing,
	}), nil
}

// NewMockProviderFromConfig は設定からMockProviderを作成する
//
// デバイスが指定されていない場合は背面カメラを1台用意する
func NewMockProviderFromConfig(config ProviderConfig) (Provider, error) {
	var devices []Characteristics
	for i, d := range config.Devices {
		id := d.Device
		if id == "" {
			id = fmt.Sprintf("mock%d", i)
		}
		c := NewMockBackCamera(id)
		if d.Facing != "" {
			c.Facing = d.Facing
		}
		devices = append(devices, c)
	}
	if len(devices) == 0 {
		devices = append(devices, NewMockBackCamera("mock0"))
	}

	p := NewMockProvider(devices...)
	if config.Width > 0 && config.Height > 0 {
		p.SetFrameSize(config.Width, config.Height)
	}
	if config.Format != FormatUnknown {
		p.SetFrameFormat(config.Format)
	}
	return p, nil
}
