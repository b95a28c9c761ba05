/*
Package iso7816 implements data structures and logic to interact with smart cards according to the ISO/IEC 7816 standard.

This package provides the fundamental building blocks for APDU (Application Protocol Data Unit) communication, including Command and Response structures, Status Word (SW) analysis, length field encoding, and specialized parsers for File Control Information (FCI).

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

Lc and Le are encoded in short form (1 byte) unless the command forces the
extended form or Nc/Ne exceed 255/256. AppendLc and AppendLe expose the
encoding rules to callers that assemble headers themselves, such as the
DESFire native wrapping (CLA '90').

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - 0x91XX: Wrapped native status, XX is the PICC status byte.
  - Other: Various error conditions.

# File Selection and FCI

The response to SELECT (0xA4) depends heavily on the P2 parameter. ParseSelectData handles:

  - FCP (File Control Parameters) - Tag '62'
  - FMD (File Management Data) - Tag '64'
  - FCI (File Control Information) - Tag '6F'
  - Proprietary Data - Tag 'C0' or 'A5'

# Usage Example: Analyzing a Select Response

	cmd := iso7816.NewSelectCommand(iso7816.InterindustryClass(), iso7816.SelectByDFName,
	    iso7816.FirstOrOnlyOccurrence, iso7816.ReturnFCI, aid)
	raw, _ := cmd.Bytes()

	// ... transmit raw, receive resp ...

	rsp, err := iso7816.ParseResponseAPDU(resp)
	if err != nil {
	    log.Fatal(err)
	}
	if !rsp.Status.IsSuccess() {
	    log.Fatalf("select failed: %s", rsp.Status.Verbose())
	}

	fci, err := iso7816.ParseSelectData(rsp.Data, cmd.P2)
	if err != nil {
	    log.Printf("Could not parse FCI: %v", err)
	    return
	}
	if label := fci.ApplicationLabel(); label != nil {
	    fmt.Printf("Label: %s\n", string(label))
	}
	fmt.Println(fci.Describe())
*/
package iso7816
