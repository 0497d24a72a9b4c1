package mfr

import (
	"fmt"
	"strings"
)

// SerializedType selects a piece of read-only manufacturing data.
type SerializedType int

const (
	SerializedManufacturer SerializedType = iota
	SerializedManufacturerOUI
	SerializedModelName
	SerializedDescription
	SerializedProductClass
	SerializedSerialNumber
	SerializedHardwareVersion
	SerializedSoftwareVersion
	SerializedProvisioningCode
	SerializedFirstUseDate
	SerializedVendorConfigFileEntries
	SerializedVendorLogFileEntries
	SerializedSupportedDataModelEntries
	SerializedProcessorEntries
	SerializedDeviceMAC
	SerializedMoCAMAC
	SerializedHDMIHDCP
	SerializedHDMIHDCPInput
	SerializedHDMIHDCP22
	SerializedHDMIHDCP22Len
	SerializedPDRIVersion
	SerializedCMMAC
	SerializedESTBMAC
	SerializedDRMWidevine
	SerializedDRMPlayReady
	SerializedDRMNetflix
	SerializedDRMSSL
	SerializedSSLCert
	SerializedWiFiMAC
	SerializedBluetoothMAC
	SerializedEthernetMAC

	serializedTypeMax
)

var serializedNames = [...]string{
	SerializedManufacturer:              "manufacturer",
	SerializedManufacturerOUI:           "manufacturer_oui",
	SerializedModelName:                 "model_name",
	SerializedDescription:               "description",
	SerializedProductClass:              "product_class",
	SerializedSerialNumber:              "serial_number",
	SerializedHardwareVersion:           "hardware_version",
	SerializedSoftwareVersion:           "software_version",
	SerializedProvisioningCode:          "provisioning_code",
	SerializedFirstUseDate:              "first_use_date",
	SerializedVendorConfigFileEntries:   "vendor_configfile_entries",
	SerializedVendorLogFileEntries:      "vendor_logfile_entries",
	SerializedSupportedDataModelEntries: "supported_datamodel_entries",
	SerializedProcessorEntries:          "processor_entries",
	SerializedDeviceMAC:                 "device_mac",
	SerializedMoCAMAC:                   "moca_mac",
	SerializedHDMIHDCP:                  "hdmi_hdcp",
	SerializedHDMIHDCPInput:             "hdmi_hdcp_input",
	SerializedHDMIHDCP22:                "hdmi_hdcp_2_2",
	SerializedHDMIHDCP22Len:             "hdmi_hdcp_2_2_len",
	SerializedPDRIVersion:               "pdri_version",
	SerializedCMMAC:                     "cm_mac",
	SerializedESTBMAC:                   "estb_mac",
	SerializedDRMWidevine:               "drm_widevine",
	SerializedDRMPlayReady:              "drm_playready",
	SerializedDRMNetflix:                "drm_netflix",
	SerializedDRMSSL:                    "drm_ssl",
	SerializedSSLCert:                   "ssl_cert",
	SerializedWiFiMAC:                   "wifi_mac",
	SerializedBluetoothMAC:              "bluetooth_mac",
	SerializedEthernetMAC:               "ethernet_mac",
}

// Valid reports whether t names a known serialized data type.
func (t SerializedType) Valid() bool {
	return t >= 0 && t < serializedTypeMax
}

func (t SerializedType) String() string {
	if t.Valid() {
		return serializedNames[t]
	}
	return fmt.Sprintf("SerializedType(%d)", int(t))
}

// ParseSerializedType maps a snake_case name such as "serial_number" back
// to its SerializedType.
func ParseSerializedType(s string) (SerializedType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range serializedNames {
		if name == s {
			return SerializedType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown serialized type %q", s)
}

// SerializedData is an opaque byte stream read from the device. It is not
// required to be NUL- or newline-terminated.
type SerializedData struct {
	Type SerializedType
	Buf  []byte
}
