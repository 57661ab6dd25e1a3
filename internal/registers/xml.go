package registers

import "fmt"

// XMLBase is the device-memory address the GenICam XML descriptor is
// exposed at (spec §3, §6).
const XMLBase = 0x10000

// genicamTemplate is a compact, realistic GenICam node-map description of
// the registers this device exposes. It is not the full standard schema —
// spec.md §1 excludes "full GenICam XML runtime evaluation" — but it is
// well-formed XML a client's node-map parser can walk for the registers
// this device actually implements.
const genicamTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<RegisterDescription ModelName="%s" VendorName="%s" ToolTip="GVCP control-plane register map"
    StandardNameSpace="GEV" SchemaMajorVersion="1" SchemaMinorVersion="1" SchemaSubMinorVersion="0"
    MajorVersion="1" MinorVersion="0" SubMinorVersion="0"
    xmlns="http://www.genicam.org/GenApi/Version_1_1">
  <Category Name="Root" NameSpace="Standard">
    <pFeature>AcquisitionControl</pFeature>
    <pFeature>ImageFormatControl</pFeature>
    <pFeature>TransportLayerControl</pFeature>
  </Category>
  <Category Name="AcquisitionControl" NameSpace="Standard">
    <pFeature>AcquisitionStart</pFeature>
    <pFeature>AcquisitionStop</pFeature>
    <pFeature>ExposureTimeAbs</pFeature>
    <pFeature>GainRaw</pFeature>
    <pFeature>AcquisitionFrameRateAbs</pFeature>
  </Category>
  <Command Name="AcquisitionStart" NameSpace="Standard">
    <Address>0x1014</Address>
    <Length>4</Length>
    <AccessMode>WO</AccessMode>
    <CommandValue>1</CommandValue>
  </Command>
  <Command Name="AcquisitionStop" NameSpace="Standard">
    <Address>0x1018</Address>
    <Length>4</Length>
    <AccessMode>WO</AccessMode>
    <CommandValue>1</CommandValue>
  </Command>
  <Integer Name="ExposureTimeAbs" NameSpace="Standard">
    <Address>0x1034</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
    <Min>1</Min>
    <Max>10000000</Max>
    <Unit>us</Unit>
  </Integer>
  <Integer Name="GainRaw" NameSpace="Standard">
    <Address>0x1038</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
    <Min>0</Min>
    <Max>48000</Max>
  </Integer>
  <Integer Name="AcquisitionFrameRateAbs" NameSpace="Standard">
    <Address>0x103C</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
  </Integer>
  <Category Name="ImageFormatControl" NameSpace="Standard">
    <pFeature>Width</pFeature>
    <pFeature>Height</pFeature>
    <pFeature>OffsetX</pFeature>
    <pFeature>OffsetY</pFeature>
    <pFeature>PixelFormat</pFeature>
  </Category>
  <Integer Name="Width" NameSpace="Standard"><Address>0x1024</Address><Length>4</Length><AccessMode>RW</AccessMode></Integer>
  <Integer Name="Height" NameSpace="Standard"><Address>0x1028</Address><Length>4</Length><AccessMode>RW</AccessMode></Integer>
  <Integer Name="OffsetX" NameSpace="Standard"><Address>0x102C</Address><Length>4</Length><AccessMode>RW</AccessMode></Integer>
  <Integer Name="OffsetY" NameSpace="Standard"><Address>0x1030</Address><Length>4</Length><AccessMode>RW</AccessMode></Integer>
  <Enumeration Name="PixelFormat" NameSpace="Standard"><Address>0x1020</Address><Length>4</Length><AccessMode>RW</AccessMode></Enumeration>
  <Category Name="TransportLayerControl" NameSpace="Standard">
    <pFeature>GevSCDA</pFeature>
    <pFeature>GevSCPHostPort</pFeature>
  </Category>
  <Integer Name="GevSCDA" NameSpace="Standard"><Address>0x100C</Address><Length>4</Length><AccessMode>RW</AccessMode></Integer>
  <Integer Name="GevSCPHostPort" NameSpace="Standard"><Address>0x1010</Address><Length>4</Length><AccessMode>RW</AccessMode></Integer>
</RegisterDescription>
`

// BuildXMLBlob renders the descriptor for this device identity, padding it
// out to a fixed size so the advertised URL length
// ("Local:camera.xml;0x10000;0x3A00") stays accurate regardless of how long
// the manufacturer/model strings are.
func BuildXMLBlob(manufacturer, model string) []byte {
	const blobSize = 0x3A00
	doc := fmt.Sprintf(genicamTemplate, model, manufacturer)
	if len(doc) > blobSize {
		return []byte(doc[:blobSize])
	}
	out := make([]byte, blobSize)
	copy(out, doc)
	return out
}
